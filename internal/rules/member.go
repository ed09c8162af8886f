package rules

import "github.com/dop251/goja/ast"

// memberName extracts the property name of a member-access node. It is
// structural: it handles both dot access (a.b) and bracket access with a
// string literal (a["b"]), so renaming a variable or reformatting the
// chain cannot dodge a rule. Computed access with a dynamic key returns
// ok=false: no static rule can resolve what such a key reaches, so the
// enclave independently severs the constructor route at runtime.
func memberName(n ast.Node) (name string, target ast.Expression, ok bool) {
	switch e := n.(type) {
	case *ast.DotExpression:
		return e.Identifier.Name.String(), e.Left, true
	case *ast.BracketExpression:
		if lit, isLit := e.Member.(*ast.StringLiteral); isLit {
			return lit.Value.String(), e.Left, true
		}
	}
	return "", nil, false
}

// identifierName returns the name of an identifier expression, if e is one.
func identifierName(e ast.Expression) (string, bool) {
	if id, ok := e.(*ast.Identifier); ok {
		return id.Name.String(), true
	}
	return "", false
}

package validator

import (
	"github.com/dop251/goja/ast"

	"github.com/jkaninda/codecall/internal/rules"
)

// walker drives a single depth-first pass over the syntax tree, applying
// every rule to every node. The walk is written against the full node set
// of the parser; a node type it does not recognize fails closed with a
// syntax issue rather than passing silently: an unvisited construct is an
// unvalidated construct.
type walker struct {
	rules  []rules.Rule
	ctx    *rules.Context
	issues []rules.Issue
}

func (w *walker) walkProgram(p *ast.Program) {
	for _, stmt := range p.Body {
		w.walk(stmt)
	}
}

// apply runs every rule against one node. The ancestor stack excludes the
// node itself.
func (w *walker) apply(n ast.Node) {
	for _, r := range w.rules {
		w.issues = append(w.issues, r.Inspect(n, w.ctx)...)
	}
}

func (w *walker) walk(n ast.Node) {
	if n == nil {
		return
	}
	w.apply(n)
	w.ctx.Push(n)
	defer w.ctx.Pop()

	switch node := n.(type) {
	// --- Statements ---
	case *ast.BlockStatement:
		for _, s := range node.List {
			w.walk(s)
		}
	case *ast.BranchStatement, *ast.DebuggerStatement, *ast.EmptyStatement, *ast.BadStatement:
		// No children worth inspecting.
	case *ast.CaseStatement:
		w.walkExpr(node.Test)
		for _, s := range node.Consequent {
			w.walk(s)
		}
	case *ast.CatchStatement:
		w.walkExpr(node.Parameter)
		w.walkBlock(node.Body)
	case *ast.DoWhileStatement:
		w.walkExpr(node.Test)
		w.walk(node.Body)
	case *ast.ExpressionStatement:
		w.walkExpr(node.Expression)
	case *ast.ForInStatement:
		w.walkForInto(node.Into)
		w.walkExpr(node.Source)
		w.walk(node.Body)
	case *ast.ForOfStatement:
		w.walkForInto(node.Into)
		w.walkExpr(node.Source)
		w.walk(node.Body)
	case *ast.ForStatement:
		w.walkForInit(node.Initializer)
		w.walkExpr(node.Test)
		w.walkExpr(node.Update)
		w.walk(node.Body)
	case *ast.IfStatement:
		w.walkExpr(node.Test)
		w.walk(node.Consequent)
		w.walk(node.Alternate)
	case *ast.LabelledStatement:
		w.walk(node.Statement)
	case *ast.ReturnStatement:
		w.walkExpr(node.Argument)
	case *ast.SwitchStatement:
		w.walkExpr(node.Discriminant)
		for _, c := range node.Body {
			w.walk(c)
		}
	case *ast.ThrowStatement:
		w.walkExpr(node.Argument)
	case *ast.TryStatement:
		w.walkBlock(node.Body)
		if node.Catch != nil {
			w.walk(node.Catch)
		}
		w.walkBlock(node.Finally)
	case *ast.VariableStatement:
		w.walkBindings(node.List)
	case *ast.LexicalDeclaration:
		w.walkBindings(node.List)
	case *ast.WhileStatement:
		w.walkExpr(node.Test)
		w.walk(node.Body)
	case *ast.WithStatement:
		// Flagged by the global-access rule; still walk inside so every
		// issue is reported in one pass.
		w.walkExpr(node.Object)
		w.walk(node.Body)
	case *ast.FunctionDeclaration:
		w.walk(node.Function)
	case *ast.ClassDeclaration:
		w.walk(node.Class)

	// --- Expressions ---
	case *ast.ArrayLiteral:
		w.walkExprs(node.Value)
	case *ast.ArrayPattern:
		w.walkExprs(node.Elements)
		w.walkExpr(node.Rest)
	case *ast.AssignExpression:
		w.walkExpr(node.Left)
		w.walkExpr(node.Right)
	case *ast.AwaitExpression:
		w.walkExpr(node.Argument)
	case *ast.YieldExpression:
		w.walkExpr(node.Argument)
	case *ast.BinaryExpression:
		w.walkExpr(node.Left)
		w.walkExpr(node.Right)
	case *ast.BracketExpression:
		w.walkExpr(node.Left)
		w.walkExpr(node.Member)
	case *ast.CallExpression:
		w.walkExpr(node.Callee)
		w.walkExprs(node.ArgumentList)
	case *ast.ConditionalExpression:
		w.walkExpr(node.Test)
		w.walkExpr(node.Consequent)
		w.walkExpr(node.Alternate)
	case *ast.DotExpression:
		// The property identifier is a name, not a reference; the chain
		// rules inspect it through the DotExpression itself.
		w.walkExpr(node.Left)
	case *ast.PrivateDotExpression:
		w.walkExpr(node.Left)
	case *ast.OptionalChain:
		w.walkExpr(node.Expression)
	case *ast.Optional:
		w.walkExpr(node.Expression)
	case *ast.FunctionLiteral:
		w.walkParams(node.ParameterList)
		w.walkBlock(node.Body)
	case *ast.ArrowFunctionLiteral:
		w.walkParams(node.ParameterList)
		w.walk(node.Body)
	case *ast.ClassLiteral:
		w.walkExpr(node.SuperClass)
		for _, el := range node.Body {
			w.walk(el)
		}
	case *ast.ExpressionBody:
		w.walkExpr(node.Expression)
	case *ast.NewExpression:
		w.walkExpr(node.Callee)
		w.walkExprs(node.ArgumentList)
	case *ast.ObjectLiteral:
		for _, p := range node.Value {
			w.walk(p)
		}
	case *ast.ObjectPattern:
		for _, p := range node.Properties {
			w.walk(p)
		}
		w.walkExpr(node.Rest)
	case *ast.PropertyShort:
		// Shorthand {name} references the binding called name.
		w.walk(&node.Name)
		w.walkExpr(node.Initializer)
	case *ast.PropertyKeyed:
		// A non-computed key is a name, not a reference.
		if node.Computed {
			w.walkExpr(node.Key)
		}
		w.walkExpr(node.Value)
	case *ast.SpreadElement:
		w.walkExpr(node.Expression)
	case *ast.SequenceExpression:
		w.walkExprs(node.Sequence)
	case *ast.TemplateLiteral:
		w.walkExpr(node.Tag)
		w.walkExprs(node.Expressions)
	case *ast.UnaryExpression:
		w.walkExpr(node.Operand)
	case *ast.Binding:
		w.walkExpr(node.Target)
		w.walkExpr(node.Initializer)
	case *ast.Identifier, *ast.ThisExpression, *ast.SuperExpression,
		*ast.MetaProperty, *ast.NullLiteral, *ast.NumberLiteral,
		*ast.StringLiteral, *ast.BooleanLiteral, *ast.RegExpLiteral,
		*ast.BadExpression:
		// Leaves.

	// --- Class elements ---
	case *ast.FieldDefinition:
		if node.Computed {
			w.walkExpr(node.Key)
		}
		w.walkExpr(node.Initializer)
	case *ast.MethodDefinition:
		if node.Computed {
			w.walkExpr(node.Key)
		}
		w.walk(node.Body)
	case *ast.ClassStaticBlock:
		w.walkBlock(node.Block)

	default:
		pos := w.ctx.Position(n.Idx0())
		w.issues = append(w.issues, rules.Issue{
			Code:    rules.CodeSyntax,
			Message: "unsupported language construct",
			Line:    pos.Line,
			Column:  pos.Column,
		})
	}
}

func (w *walker) walkExpr(e ast.Expression) {
	if e == nil {
		return
	}
	w.walk(e)
}

func (w *walker) walkExprs(list []ast.Expression) {
	for _, e := range list {
		w.walkExpr(e)
	}
}

func (w *walker) walkBlock(b *ast.BlockStatement) {
	if b == nil {
		return
	}
	w.walk(b)
}

func (w *walker) walkBindings(list []*ast.Binding) {
	for _, b := range list {
		w.walk(b)
	}
}

func (w *walker) walkParams(p *ast.ParameterList) {
	if p == nil {
		return
	}
	w.walkBindings(p.List)
	w.walkExpr(p.Rest)
}

func (w *walker) walkForInit(init ast.ForLoopInitializer) {
	switch i := init.(type) {
	case nil:
	case *ast.ForLoopInitializerExpression:
		w.walkExpr(i.Expression)
	case *ast.ForLoopInitializerVarDeclList:
		w.walkBindings(i.List)
	case *ast.ForLoopInitializerLexicalDecl:
		w.walkBindings(i.LexicalDeclaration.List)
	}
}

func (w *walker) walkForInto(into ast.ForInto) {
	switch i := into.(type) {
	case nil:
	case *ast.ForIntoVar:
		w.walk(i.Binding)
	case *ast.ForDeclaration:
		w.walkExpr(i.Target)
	case *ast.ForIntoExpression:
		w.walkExpr(i.Expression)
	}
}

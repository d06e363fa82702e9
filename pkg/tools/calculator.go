package tools

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"

	"github.com/harun/finagent/pkg/toolexecutor"
)

// CalculatorToolName is the registered name of the calculator tool
const CalculatorToolName = "calculator"

const maxExpressionLength = 1024

// ErrInvalidExpression is returned for anything that is not plain arithmetic
// over numeric literals, and for results that are not finite.
var ErrInvalidExpression = errors.New("invalid expression")

// Evaluate computes an arithmetic expression made of numeric literals,
// + - * / %, unary signs and parentheses. Identifiers, calls and every other
// construct are rejected without being evaluated.
func Evaluate(expression string) (float64, error) {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return 0, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	if len(expr) > maxExpressionLength {
		return 0, fmt.Errorf("%w: expression too long", ErrInvalidExpression)
	}

	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	v, err := eval(node)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: result is not finite", ErrInvalidExpression)
	}
	return v, nil
}

func eval(node ast.Expr) (float64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, fmt.Errorf("%w: unsupported literal %s", ErrInvalidExpression, n.Value)
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(n.Value, "_", ""), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad number %s", ErrInvalidExpression, n.Value)
		}
		return v, nil

	case *ast.ParenExpr:
		return eval(n.X)

	case *ast.UnaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return -x, nil
		}
		return 0, fmt.Errorf("%w: unsupported operator %s", ErrInvalidExpression, n.Op)

	case *ast.BinaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		y, err := eval(n.Y)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrInvalidExpression)
			}
			return x / y, nil
		case token.REM:
			if y == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrInvalidExpression)
			}
			return math.Mod(x, y), nil
		}
		return 0, fmt.Errorf("%w: unsupported operator %s", ErrInvalidExpression, n.Op)
	}

	return 0, fmt.Errorf("%w: unsupported syntax", ErrInvalidExpression)
}

// CalculatorDefinition returns the calculator tool definition
func CalculatorDefinition() toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        CalculatorToolName,
		Description: "Evaluate an arithmetic expression with numbers, + - * / %, and parentheses. Use it for totals, differences and averages.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "expression", Type: "string", Description: "Arithmetic expression, e.g. (120.5 + 30) * 2", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			expr, _ := params["expression"].(string)
			return Evaluate(expr)
		},
	}
}

// internal/service/loyalty/policy/accrual.go
package policy

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// DefaultAccrualRule 只有眼镜店角色累积积分
const DefaultAccrualRule = `role == "OPTICIAN"`

// AccrualFact 是规则可见的事实
type AccrualFact struct {
	Role       string
	OpticianID string
	ProductID  string
	Quantity   int
	Reward     int
}

// CELAccrualPolicy 用 CEL 表达式判断一次确认是否累积积分。
// 表达式在启动时编译并校验返回类型，运行期只做求值。
type CELAccrualPolicy struct {
	expr string
	prg  cel.Program
}

func NewCELAccrualPolicy(expr string) (*CELAccrualPolicy, error) {
	if expr == "" {
		expr = DefaultAccrualRule
	}
	env, err := cel.NewEnv(
		cel.Variable("role", cel.StringType),
		cel.Variable("optician_id", cel.StringType),
		cel.Variable("product_id", cel.StringType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("reward", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile accrual rule %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("accrual rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build accrual program: %w", err)
	}
	return &CELAccrualPolicy{expr: expr, prg: prg}, nil
}

// Eligible 对事实求值
func (p *CELAccrualPolicy) Eligible(ctx context.Context, fact AccrualFact) (bool, error) {
	out, _, err := p.prg.ContextEval(ctx, map[string]any{
		"role":        fact.Role,
		"optician_id": fact.OpticianID,
		"product_id":  fact.ProductID,
		"quantity":    int64(fact.Quantity),
		"reward":      int64(fact.Reward),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate accrual rule: %w", err)
	}
	eligible, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("accrual rule returned %T", out.Value())
	}
	return eligible, nil
}

func (p *CELAccrualPolicy) Expression() string { return p.expr }

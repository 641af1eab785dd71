package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jamesbinford/LGTM/internal/models"
)

// ErrInvalidRuleField is returned when a condition names an unknown field or
// pairs an equality-only field with an ordering operator. Conditions are
// validated once, when the engine is built, never at evaluation time.
var ErrInvalidRuleField = errors.New("invalid rule field")

// Field identifies a finding/review attribute a clause may test.
type Field int

const (
	FieldSeverity   Field = iota // ordinal: low < medium < high < critical
	FieldCategory                // equality only
	FieldAgeDays                 // whole days since review creation
	FieldAction                  // recommended action, equality only
	FieldConfidence              // agent confidence in [0,1]
)

func (f Field) String() string {
	switch f {
	case FieldSeverity:
		return "severity"
	case FieldCategory:
		return "category"
	case FieldAgeDays:
		return "age_days"
	case FieldAction:
		return "action"
	case FieldConfidence:
		return "confidence"
	default:
		return "unknown"
	}
}

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
)

func (o Op) ordering() bool {
	return o == OpGt || o == OpGte || o == OpLt || o == OpLte
}

// Clause is one `field operator literal` comparison. The literal is stored
// pre-typed so evaluation is a pure, allocation-free traversal.
type Clause struct {
	Field Field
	Op    Op

	str  string  // category / action literal
	num  float64 // age_days / confidence literal
	rank int     // severity literal, as ordinal rank
}

// Condition is a conjunction of clauses.
type Condition struct {
	Clauses []Clause
	Raw     string
}

// ParseCondition parses a condition string such as
//
//	severity == 'low' AND category == 'style' AND age_days > 14
//
// into a reusable clause tree. Malformed conditions fail here, before any
// ledger write, so evaluation never re-parses or re-validates.
func ParseCondition(s string) (Condition, error) {
	cond := Condition{Raw: s}
	if strings.TrimSpace(s) == "" {
		return cond, fmt.Errorf("empty condition")
	}

	for _, part := range strings.Split(s, " AND ") {
		clause, err := parseClause(strings.TrimSpace(part))
		if err != nil {
			return cond, fmt.Errorf("condition %q: %w", s, err)
		}
		cond.Clauses = append(cond.Clauses, clause)
	}
	return cond, nil
}

// Longer operators first so "<=" is never tokenized as "<".
var operators = []struct {
	token string
	op    Op
}{
	{"==", OpEq},
	{"!=", OpNe},
	{">=", OpGte},
	{"<=", OpLte},
	{">", OpGt},
	{"<", OpLt},
}

func parseClause(expr string) (Clause, error) {
	for _, o := range operators {
		idx := strings.Index(expr, o.token)
		if idx < 0 {
			continue
		}

		fieldName := strings.TrimSpace(expr[:idx])
		literal := strings.TrimSpace(expr[idx+len(o.token):])

		field, err := parseField(fieldName)
		if err != nil {
			return Clause{}, err
		}
		if o.op.ordering() && (field == FieldCategory || field == FieldAction) {
			return Clause{}, fmt.Errorf("field %s supports equality only: %w", field, ErrInvalidRuleField)
		}

		clause := Clause{Field: field, Op: o.op}
		if err := parseLiteral(&clause, literal); err != nil {
			return Clause{}, err
		}
		return clause, nil
	}
	return Clause{}, fmt.Errorf("clause %q: no operator", expr)
}

func parseField(name string) (Field, error) {
	switch name {
	case "severity":
		return FieldSeverity, nil
	case "category", "type":
		return FieldCategory, nil
	case "age_days":
		return FieldAgeDays, nil
	case "action", "recommended_action":
		return FieldAction, nil
	case "confidence":
		return FieldConfidence, nil
	default:
		return 0, fmt.Errorf("field %q: %w", name, ErrInvalidRuleField)
	}
}

func parseLiteral(c *Clause, literal string) error {
	unquoted := strings.Trim(literal, `'"`)

	switch c.Field {
	case FieldSeverity:
		sev := models.Severity(unquoted)
		if !models.ValidSeverity(sev) {
			return fmt.Errorf("unknown severity %q", unquoted)
		}
		c.rank = models.SeverityRank(sev)
	case FieldCategory:
		if !models.ValidCategory(models.Category(unquoted)) {
			return fmt.Errorf("unknown category %q", unquoted)
		}
		c.str = unquoted
	case FieldAction:
		switch models.RecommendedAction(unquoted) {
		case models.ActionAccept, models.ActionReject, models.ActionModify:
		default:
			return fmt.Errorf("unknown action %q", unquoted)
		}
		c.str = unquoted
	case FieldAgeDays:
		n, err := strconv.Atoi(unquoted)
		if err != nil {
			return fmt.Errorf("age_days literal %q: %w", literal, err)
		}
		c.num = float64(n)
	case FieldConfidence:
		v, err := strconv.ParseFloat(unquoted, 64)
		if err != nil {
			return fmt.Errorf("confidence literal %q: %w", literal, err)
		}
		c.num = v
	}
	return nil
}

// Matches evaluates the condition against a finding and its age in days.
// All clauses must hold.
func (c Condition) Matches(f *models.Finding, ageDays int) bool {
	for _, clause := range c.Clauses {
		if !clause.matches(f, ageDays) {
			return false
		}
	}
	return true
}

func (c Clause) matches(f *models.Finding, ageDays int) bool {
	switch c.Field {
	case FieldSeverity:
		return compareInt(models.SeverityRank(f.Severity), c.rank, c.Op)
	case FieldCategory:
		return compareEq(string(f.Category) == c.str, c.Op)
	case FieldAction:
		// A finding without a recommendation has no action; no clause over
		// the field can hold.
		if f.Recommendation == nil {
			return false
		}
		return compareEq(string(f.Recommendation.Action) == c.str, c.Op)
	case FieldAgeDays:
		return compareFloat(float64(ageDays), c.num, c.Op)
	case FieldConfidence:
		if f.Recommendation == nil {
			return false
		}
		return compareFloat(f.Recommendation.Confidence, c.num, c.Op)
	default:
		return false
	}
}

func compareEq(equal bool, op Op) bool {
	if op == OpNe {
		return !equal
	}
	return equal
}

func compareInt(a, b int, op Op) bool {
	return compareFloat(float64(a), float64(b), op)
}

func compareFloat(a, b float64, op Op) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	default:
		return false
	}
}

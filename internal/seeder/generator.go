package seeder

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Lumos-Labs-HQ/sprout/internal/schema"
)

// GenFunc produces a value for one column.
type GenFunc func(col ColumnContext) interface{}

// Handler is one layer of the generator chain. A handler either produces a
// value itself or delegates to next. Handlers are composed once at
// construction; override priority is just list order.
type Handler func(col ColumnContext, next GenFunc) interface{}

// ColumnContext is what a handler gets to look at: the schema column plus the
// table it belongs to.
type ColumnContext struct {
	Table  string
	Column schema.Column
}

// Chain composes handlers front to back. The last handler must not call next.
func Chain(handlers ...Handler) GenFunc {
	next := GenFunc(func(col ColumnContext) interface{} {
		panic(fmt.Sprintf("generator chain exhausted for %s.%s", col.Table, col.Column.Name))
	})
	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		n := next
		next = func(col ColumnContext) interface{} {
			return h(col, n)
		}
	}
	return next
}

// Generator produces column values through a three-layer chain:
// plan override → column-name heuristics → type fallback.
type Generator struct {
	rand    *rand.Rand
	gen     GenFunc
	counter int
}

func NewGenerator(plan *Plan, seed int64) *Generator {
	g := &Generator{rand: rand.New(rand.NewSource(seed))}
	g.gen = Chain(
		g.planHandler(plan),
		g.nullHandler(plan),
		g.nameHandler(),
		g.typeHandler(),
	)
	return g
}

// Generate produces a value for one column.
func (g *Generator) Generate(table string, col schema.Column) interface{} {
	return g.gen(ColumnContext{Table: table, Column: col})
}

// planHandler serves fixed values and choice lists from seed.yaml.
func (g *Generator) planHandler(plan *Plan) Handler {
	return func(col ColumnContext, next GenFunc) interface{} {
		cp, ok := plan.Column(col.Table, col.Column.Name)
		if !ok {
			return next(col)
		}
		if len(cp.Choices) > 0 {
			return cp.Choices[g.rand.Intn(len(cp.Choices))]
		}
		if cp.Value != nil {
			return cp.Value
		}
		return next(col)
	}
}

// nullHandler decides whether a nullable column gets NULL this time.
func (g *Generator) nullHandler(plan *Plan) Handler {
	return func(col ColumnContext, next GenFunc) interface{} {
		if !col.Column.Nullable {
			return next(col)
		}
		rate := 0.2
		if cp, ok := plan.Column(col.Table, col.Column.Name); ok && cp.NullRate != nil {
			rate = *cp.NullRate
		}
		if g.rand.Float64() < rate {
			return nil
		}
		return next(col)
	}
}

// nameHandler picks realistic values for recognizable column names.
func (g *Generator) nameHandler() Handler {
	return func(col ColumnContext, next GenFunc) interface{} {
		colLower := strings.ToLower(col.Column.Name)
		switch {
		case strings.Contains(colLower, "email"):
			return g.email()
		case strings.Contains(colLower, "name") && !strings.Contains(colLower, "file"):
			return g.fullName()
		case strings.Contains(colLower, "title"):
			return g.title()
		case strings.Contains(colLower, "description") || strings.Contains(colLower, "content"):
			return g.sentence()
		case strings.Contains(colLower, "url") || strings.Contains(colLower, "link"):
			return fmt.Sprintf("https://example.com/page/%d", g.rand.Intn(1000))
		case strings.Contains(colLower, "phone"):
			return fmt.Sprintf("+1-%03d-%03d-%04d", g.rand.Intn(1000), g.rand.Intn(1000), g.rand.Intn(10000))
		case strings.Contains(colLower, "address"):
			return fmt.Sprintf("%d Main Street, City, State %05d", g.rand.Intn(9999)+1, g.rand.Intn(100000))
		default:
			return next(col)
		}
	}
}

// typeHandler is the terminal fallback keyed on the SQL type.
func (g *Generator) typeHandler() Handler {
	return func(col ColumnContext, next GenFunc) interface{} {
		typeUpper := strings.ToUpper(col.Column.Type)
		if idx := strings.Index(typeUpper, "("); idx > 0 {
			typeUpper = typeUpper[:idx]
		}

		switch {
		case strings.Contains(typeUpper, "BIGINT"):
			return g.rand.Int63n(1_000_000) + 1
		case strings.Contains(typeUpper, "INT") || strings.Contains(typeUpper, "SERIAL"):
			return int64(g.rand.Intn(1_000_000) + 1)
		case strings.Contains(typeUpper, "BOOL"):
			return g.rand.Intn(2) == 1
		case strings.Contains(typeUpper, "TIMESTAMP") || strings.Contains(typeUpper, "DATETIME"):
			return g.timestamp()
		case strings.Contains(typeUpper, "DATE"):
			return g.timestamp().Format("2006-01-02")
		case strings.Contains(typeUpper, "DECIMAL") || strings.Contains(typeUpper, "NUMERIC"):
			return decimal.New(g.rand.Int63n(10_000_00), -2)
		case strings.Contains(typeUpper, "FLOAT") || strings.Contains(typeUpper, "DOUBLE") || strings.Contains(typeUpper, "REAL"):
			return g.rand.Float64() * 10_000
		case strings.Contains(typeUpper, "UUID"):
			return uuid.NewString()
		case strings.Contains(typeUpper, "JSON"):
			return `{"generated": true}`
		default:
			return g.word()
		}
	}
}

func (g *Generator) fullName() string {
	firstNames := []string{"John", "Jane", "Alice", "Bob", "Charlie", "Diana", "Eve", "Frank", "Grace", "Henry"}
	lastNames := []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez"}
	return firstNames[g.rand.Intn(len(firstNames))] + " " + lastNames[g.rand.Intn(len(lastNames))]
}

func (g *Generator) email() string {
	g.counter++
	domains := []string{"example.com", "test.com", "demo.com", "mail.com"}
	return fmt.Sprintf("user%d_%d@%s", g.counter, g.rand.Intn(100000), domains[g.rand.Intn(len(domains))])
}

func (g *Generator) title() string {
	titles := []string{
		"Getting Started with Go",
		"Understanding Databases",
		"Web Development Best Practices",
		"Introduction to APIs",
		"Modern Software Architecture",
		"Cloud Computing Basics",
		"Data Structures and Algorithms",
		"Machine Learning Fundamentals",
	}
	return titles[g.rand.Intn(len(titles))]
}

func (g *Generator) sentence() string {
	sentences := []string{
		"This is a sample text generated for testing purposes.",
		"Lorem ipsum dolor sit amet, consectetur adipiscing elit.",
		"The quick brown fox jumps over the lazy dog.",
		"Software development requires careful planning and execution.",
		"Database design is crucial for application performance.",
	}
	return sentences[g.rand.Intn(len(sentences))]
}

func (g *Generator) word() string {
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}
	return words[g.rand.Intn(len(words))]
}

func (g *Generator) timestamp() time.Time {
	days := g.rand.Intn(365)
	return time.Now().UTC().AddDate(0, 0, -days).Truncate(time.Second)
}

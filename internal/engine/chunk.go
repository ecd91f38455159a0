package engine

// Transform is applied to a resolved reference value before it is used in an
// insert payload. A nil Transform means identity.
type Transform func(value interface{}) interface{}

// Ref points at a column of another generated row, identified by the row's
// generation sequence number (not its position in the target table).
type Ref struct {
	Table     string
	Row       int64
	Column    string
	Transform Transform
}

// Auto marks a column whose value is produced by the database itself
// (SERIAL, AUTO_INCREMENT, ...). Auto columns are omitted from the insert
// payload and never resolved.
type Auto struct{}

// RowChunk is one fully generated row for one table. Seq is 0-based,
// assigned at generation time, monotonically increasing per table and never
// reused. Columns fixes the iteration order of Values.
type RowChunk struct {
	Table   string
	Seq     int64
	Columns []string
	Values  map[string]interface{}
}

// Refs returns the references contained in the chunk, in column order.
func (c *RowChunk) Refs() []Ref {
	var refs []Ref
	for _, col := range c.Columns {
		if ref, ok := c.Values[col].(Ref); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// insertColumns returns the columns that participate in the insert payload,
// i.e. everything except Auto columns, preserving column order.
func (c *RowChunk) insertColumns() []string {
	cols := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		if _, ok := c.Values[col].(Auto); ok {
			continue
		}
		cols = append(cols, col)
	}
	return cols
}

// autoColumns returns the columns omitted from the payload, in column order.
func (c *RowChunk) autoColumns() []string {
	var cols []string
	for _, col := range c.Columns {
		if _, ok := c.Values[col].(Auto); ok {
			cols = append(cols, col)
		}
	}
	return cols
}

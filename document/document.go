package document

// Field is a single named value inside a Document.
type Field struct {
	Name  string
	Value Value
}

// Document is an ordered set of uniquely named fields. Field order is kept for
// display and encoding; lookups are by exact name.
type Document struct {
	fields []Field
	index  map[string]int
}

// New builds a document from fields in order. A repeated name replaces the
// earlier value in place.
func New(fields ...Field) Document {
	var d Document
	for _, f := range fields {
		d.Set(f.Name, f.Value)
	}
	return d
}

// Set adds or replaces a field. Replacing keeps the original position.
func (d *Document) Set(name string, v Value) {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[name]; ok {
		d.fields[i].Value = v
		return
	}
	d.index[name] = len(d.fields)
	d.fields = append(d.fields, Field{Name: name, Value: v})
}

// Get returns the value stored under name.
func (d Document) Get(name string) (Value, bool) {
	i, ok := d.index[name]
	if !ok {
		return Value{}, false
	}
	return d.fields[i].Value, true
}

func (d Document) Len() int { return len(d.fields) }

// Names returns the field names in document order.
func (d Document) Names() []string {
	names := make([]string, len(d.fields))
	for i, f := range d.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of the fields in document order.
func (d Document) Fields() []Field {
	out := make([]Field, len(d.fields))
	copy(out, d.fields)
	return out
}

// Equal compares field sets and values. Field order is not significant.
func (d Document) Equal(o Document) bool {
	if len(d.fields) != len(o.fields) {
		return false
	}
	for _, f := range d.fields {
		ov, ok := o.Get(f.Name)
		if !ok || !f.Value.Equal(ov) {
			return false
		}
	}
	return true
}

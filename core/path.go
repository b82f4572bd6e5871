package core

// Param is a named topic segment captured while recognizing a Path.
type Param struct {
	Name  string
	Value string
}

// Path is the routable part of a publish: its topic plus the segment values
// captured by the matcher that recognized it.
//
// Matchers receive a *Path so they can record captures; handlers read them
// back with Get.
type Path struct {
	topic  string
	params []Param
}

// NewPath returns a Path for topic with no captures.
func NewPath(topic string) Path {
	return Path{topic: topic}
}

// Topic returns the topic string.
func (p *Path) Topic() string { return p.topic }

// SetTopic replaces the topic and drops any captures recorded for the old one.
func (p *Path) SetTopic(topic string) {
	p.topic = topic
	p.params = p.params[:0]
}

// Get returns the value captured for name.
func (p *Path) Get(name string) (string, bool) {
	for _, kv := range p.params {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return "", false
}

// Params returns all captures in the order they were recorded.
func (p *Path) Params() []Param { return p.params }

// Add records a capture. Matchers call this while recognizing.
func (p *Path) Add(name, value string) {
	p.params = append(p.params, Param{Name: name, Value: value})
}

// Reset drops all captures, keeping the topic.
func (p *Path) Reset() { p.params = p.params[:0] }

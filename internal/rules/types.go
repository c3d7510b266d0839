package rules

// RouteRule is one proxy rule: the route context it matches and the option
// bag describing how matched requests are forwarded.
type RouteRule struct {
	Context string         `json:"context"`
	Options map[string]any `json:"options"`
}

// RouteConfig is an ordered mapping from route context to RouteRule.
// Rules are installed in insertion order.
type RouteConfig struct {
	contexts []string
	rules    map[string]RouteRule
}

func NewRouteConfig() *RouteConfig {
	return &RouteConfig{rules: make(map[string]RouteRule)}
}

// Set adds a rule, or replaces the rule for an existing context in place.
func (c *RouteConfig) Set(context string, options map[string]any) {
	if c.rules == nil {
		c.rules = make(map[string]RouteRule)
	}
	if _, exists := c.rules[context]; !exists {
		c.contexts = append(c.contexts, context)
	}
	c.rules[context] = RouteRule{Context: context, Options: options}
}

func (c *RouteConfig) Get(context string) (RouteRule, bool) {
	if c == nil {
		return RouteRule{}, false
	}
	rule, ok := c.rules[context]
	return rule, ok
}

func (c *RouteConfig) Len() int {
	if c == nil {
		return 0
	}
	return len(c.contexts)
}

// Contexts returns the route contexts in insertion order.
func (c *RouteConfig) Contexts() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.contexts...)
}

// Rules returns the rules in insertion order.
func (c *RouteConfig) Rules() []RouteRule {
	if c == nil {
		return nil
	}
	out := make([]RouteRule, 0, len(c.contexts))
	for _, ctx := range c.contexts {
		out = append(out, c.rules[ctx])
	}
	return out
}

// Merge appends every rule of other, replacing rules whose context already exists.
func (c *RouteConfig) Merge(other *RouteConfig) {
	for _, rule := range other.Rules() {
		c.Set(rule.Context, rule.Options)
	}
}

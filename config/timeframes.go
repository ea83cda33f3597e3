package config

import "fmt"

// Timeframe returns the timeframe configuration by name.
func (c *Config) Timeframe(name string) (TimeframeConfig, bool) {
	for _, tf := range c.Timeframes {
		if tf.Name == name {
			return tf, true
		}
	}
	return TimeframeConfig{}, false
}

// TimeframeOrder returns all timeframes in dependency order: every derived
// timeframe appears after its source. Cycles and references to undeclared
// sources are configuration errors.
func (c *Config) TimeframeOrder() ([]TimeframeConfig, error) {
	byName := make(map[string]TimeframeConfig, len(c.Timeframes))
	for _, tf := range c.Timeframes {
		if _, dup := byName[tf.Name]; dup {
			return nil, fmt.Errorf("timeframe %s declared twice", tf.Name)
		}
		byName[tf.Name] = tf
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(byName))
	order := make([]TimeframeConfig, 0, len(byName))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("timeframe dependency cycle through %s", name)
		}
		tf, ok := byName[name]
		if !ok {
			return fmt.Errorf("timeframe %s references undeclared source", name)
		}
		state[name] = visiting
		if !tf.Root {
			if err := visit(tf.Source); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, tf)
		return nil
	}

	for _, tf := range c.Timeframes {
		if err := visit(tf.Name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

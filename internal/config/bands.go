package config

import "fmt"

type bandBound struct {
	name string
	high int
}

// bandBounds returns the five configured bands in ascending order of their
// upper (exclusive, except critical) bound.
func (c Config) bandBounds() []bandBound {
	return []bandBound{
		{"low", c.Bands.Low},
		{"medium", c.Bands.Medium},
		{"elevated", c.Bands.Elevated},
		{"high", c.Bands.High},
		{"critical", c.Bands.Critical},
	}
}

// Threshold returns the score at or above which a process is considered to
// have entered the named band.
func (c Config) Threshold(name string) (int, error) {
	bounds := c.bandBounds()
	for i, b := range bounds {
		if b.name == name {
			if i == 0 {
				return 0, nil
			}
			return bounds[i-1].high, nil
		}
	}
	return 0, fmt.Errorf("unknown band %q", name)
}

// BandFor returns the name of the band containing score.
func (c Config) BandFor(score int) string {
	bounds := c.bandBounds()
	for _, b := range bounds {
		if score < b.high {
			return b.name
		}
	}
	return bounds[len(bounds)-1].name
}

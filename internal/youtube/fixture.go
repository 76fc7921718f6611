package youtube

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// ErrFixtureMetrics is returned when the loaded fixture has no metrics
// entry for a requested video. In mock mode this is a test-setup error,
// not a soft-fail case.
var ErrFixtureMetrics = errors.New("no fixture metrics found")

var validate = validator.New()

// loadFixture reads, parses, and schema-validates the mock fixture file,
// memoizing the result for the lifetime of the client instance.
func (c *Client) loadFixture() (*Fixture, error) {
	c.mu.Lock()
	fixture := c.fixture
	c.mu.Unlock()
	if fixture != nil {
		return fixture, nil
	}

	v, err, _ := c.initGroup.Do("fixture", func() (any, error) {
		loaded, err := readFixture(c.cfg.Optimizer.FixturePath)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.fixture = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Fixture), nil
}

// readFixture loads one fixture file from disk. Validation failure is a
// distinct error from a missing or unreadable file so callers can tell a
// malformed fixture apart from a mispointed path.
func readFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture file: %w", err)
	}

	var fixture Fixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("parsing fixture file %q: %w", path, err)
	}

	if err := validate.Struct(&fixture); err != nil {
		return nil, fmt.Errorf("validating fixture file %q: %w", path, err)
	}

	return &fixture, nil
}

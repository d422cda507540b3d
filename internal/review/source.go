// Package review looks up third-party ratings for a listing title.
package review

import (
	"context"

	"github.com/sells-group/housing-cli/internal/model"
)

// Source resolves a listing title to one provider's review data. A nil
// Review with a nil error means the provider has no match.
type Source interface {
	Name() model.ReviewSource
	Lookup(ctx context.Context, title string) (*model.Review, error)
}

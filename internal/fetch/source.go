// Package fetch provides access to the cast data source: the HTTP hub
// client used in production and a simulated network for development and
// tests. Both return batches of casts in non-decreasing timestamp order.
package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/abelbrown/castwatch/internal/cast"
)

// ErrUnavailable marks a transient collaborator failure: timeout,
// connection refusal, upstream 5xx. A cycle that sees it retries next
// tick. Distinct from an empty batch: an outage is not a quiet period.
var ErrUnavailable = errors.New("cast source unavailable")

// Source is the data-access collaborator. FetchCasts returns casts for
// the channel strictly after the since cursor, at most limit of them, in
// non-decreasing timestamp order. A zero since means "from the beginning
// of whatever the source retains". May return fewer than limit.
type Source interface {
	FetchCasts(ctx context.Context, channel string, since time.Time, limit int) ([]cast.Cast, error)
}

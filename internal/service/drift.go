package service

import (
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"doc-reindexer/internal/models"
)

// driftDetector notices signs that the collection is being written while the
// scan runs: a document id served twice, or a changing total. It only warns.
type driftDetector struct {
	seen *cache.Cache
	log  *zap.Logger
}

// newDriftDetector remembers ids for window; a zero window disables id tracking.
func newDriftDetector(window time.Duration, log *zap.Logger) *driftDetector {
	d := &driftDetector{log: log}
	if window > 0 {
		d.seen = cache.New(window, 2*window)
	}
	return d
}

// observeDocs records ids and returns how many were already seen in this run.
func (d *driftDetector) observeDocs(docs []*models.Document) int {
	if d.seen == nil {
		return 0
	}
	var revisited []string
	for _, doc := range docs {
		id := doc.ID()
		if id == "" {
			continue
		}
		if err := d.seen.Add(id, struct{}{}, cache.DefaultExpiration); err != nil {
			revisited = append(revisited, id)
		}
	}
	if len(revisited) > 0 {
		d.log.Warn("documents served twice, collection offsets shifted",
			zap.Int("count", len(revisited)),
			zap.Strings("ids", revisited))
	}
	return len(revisited)
}

// observeTotal warns when the total reported by the index moves between pages.
func (d *driftDetector) observeTotal(previous, current int) bool {
	if previous == 0 || previous == current {
		return false
	}
	d.log.Warn("collection size changed during scan",
		zap.Int("previous", previous),
		zap.Int("current", current))
	return true
}

func (d *driftDetector) reset() {
	if d.seen != nil {
		d.seen.Flush()
	}
}

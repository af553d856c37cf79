package projection

// FundingIndexEntry is one observed funding index point for an asset.
type FundingIndexEntry struct {
	Asset     string
	Sequence  int64
	Index     int64
	Timestamp int64
}

// FundingIndexProjection keeps a queryable in-memory funding index
// history, mirroring projections.funding_history for hot reads.
type FundingIndexProjection struct {
	entries []FundingIndexEntry
}

func NewFundingIndexProjection() *FundingIndexProjection {
	return &FundingIndexProjection{
		entries: make([]FundingIndexEntry, 0),
	}
}

// AddEntry records a funding index observation.
func (p *FundingIndexProjection) AddEntry(entry FundingIndexEntry) {
	p.entries = append(p.entries, entry)
}

// QueryByAsset returns the most recent entries for an asset, newest first.
func (p *FundingIndexProjection) QueryByAsset(asset string, limit int) []FundingIndexEntry {
	result := make([]FundingIndexEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Asset == asset {
			result = append(result, p.entries[i])
		}
	}

	return result
}

// Latest returns the newest entry for an asset.
func (p *FundingIndexProjection) Latest(asset string) (FundingIndexEntry, bool) {
	for i := len(p.entries) - 1; i >= 0; i-- {
		if p.entries[i].Asset == asset {
			return p.entries[i], true
		}
	}
	return FundingIndexEntry{}, false
}

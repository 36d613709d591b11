package vectorindex

// Bridges for the external test package.
var (
	FuseRRF = fuseRRF
	TopHits = topHits
)

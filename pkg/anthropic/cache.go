package anthropic

// BuildCachedSystemBlocks returns the extraction instructions as a single
// system block with a 1-hour cache breakpoint. The instructions are the same
// for every brand, so repeated extractions read them from the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "1h"},
		},
	}
}

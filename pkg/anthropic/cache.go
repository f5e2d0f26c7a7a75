package anthropic

// CachedSystemPrompt returns a system block with a cache breakpoint so the
// shared extraction prompt is billed once per TTL window instead of per record.
func CachedSystemPrompt(text, ttl string) []SystemBlock {
	if ttl == "" {
		ttl = "5m"
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: ttl}}}
}

package enum

type Provider int

const (
	Anthropic Provider = iota
	OpenAI
)

func (p Provider) String() string {
	return [...]string{"anthropic", "openai"}[p]
}

type StorageBackend int

const (
	MemoryBackend StorageBackend = iota
	RedisBackend
	PostgresBackend
)

func (b StorageBackend) String() string {
	return [...]string{"memory", "redis", "postgres"}[b]
}

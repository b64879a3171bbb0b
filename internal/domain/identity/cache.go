package identity

import "time"

type Cache interface {
	GetByToken(token string) (*Principal, bool)
	SetByToken(token string, principal *Principal, ttl time.Duration)
	DeleteByToken(token string)
	Clear()
}

type noopCache struct{}

func NoopCache() Cache {
	return noopCache{}
}

func (noopCache) GetByToken(string) (*Principal, bool) {
	return nil, false
}

func (noopCache) SetByToken(string, *Principal, time.Duration) {}

func (noopCache) DeleteByToken(string) {}

func (noopCache) Clear() {}

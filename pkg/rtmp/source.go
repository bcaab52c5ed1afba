package rtmp

import (
	"log/slog"
	"time"
)

// Publisher is the publishing side of a Source.
type Publisher interface {
	ID() string
	// CachedTags returns the script, audio and video tags cached for late joiners.
	CachedTags() (script, audio, video *Tag)
}

// Player is the playing side of a Source.
type Player interface {
	ID() string
	WriteTag(tag *Tag) error
	ReceiveAudio() bool
	ReceiveVideo() bool
}

// Consumer는 Source 에 붙은 플레이어와 캐시 전달 여부
type Consumer struct {
	player     Player
	scriptSent bool
	audioSent  bool
	videoSent  bool
	joinedAt   time.Time
}

func (c *Consumer) reset() {
	c.scriptSent = false
	c.audioSent = false
	c.videoSent = false
}

// deliver sends the cached headers the consumer has not received yet and then
// the live tag. A live tag that is itself one of those headers goes out once.
func (c *Consumer) deliver(tag, script, audio, video *Tag) error {
	if !c.scriptSent && script != nil {
		if err := c.player.WriteTag(script); err != nil {
			return err
		}
		c.scriptSent = true
		if tag == script {
			return nil
		}
	}
	if !c.audioSent && audio != nil {
		if err := c.player.WriteTag(audio); err != nil {
			return err
		}
		c.audioSent = true
		if tag == audio {
			return nil
		}
	}
	if !c.videoSent && video != nil {
		if err := c.player.WriteTag(video); err != nil {
			return err
		}
		c.videoSent = true
		if tag == video {
			return nil
		}
	}

	switch tag.Type {
	case TagAudio:
		if !c.player.ReceiveAudio() {
			return nil
		}
	case TagVideo:
		if !c.player.ReceiveVideo() {
			return nil
		}
	}
	return c.player.WriteTag(tag)
}

// Source는 하나의 라이브 스트림 (app/streamName)
type Source struct {
	key       string
	publisher Publisher
	consumers []*Consumer
	createdAt time.Time

	tags  uint64
	bytes uint64
}

func newSource(key string) *Source {
	return &Source{key: key, createdAt: time.Now()}
}

func (s *Source) Key() string {
	return s.key
}

func (s *Source) Publisher() Publisher {
	return s.publisher
}

func (s *Source) ConsumerCount() int {
	return len(s.consumers)
}

func (s *Source) consumerIndex(p Player) int {
	for i, c := range s.consumers {
		if c.player == p {
			return i
		}
	}
	return -1
}

func (s *Source) addConsumer(p Player) *Consumer {
	c := &Consumer{player: p, joinedAt: time.Now()}
	s.consumers = append(s.consumers, c)
	slog.Info("Player added", "stream", s.key, "sessionId", p.ID(), "playerCount", len(s.consumers))
	return c
}

func (s *Source) removeConsumer(p Player) bool {
	i := s.consumerIndex(p)
	if i < 0 {
		return false
	}
	c := s.consumers[i]
	s.consumers = append(s.consumers[:i], s.consumers[i+1:]...)
	slog.Info("Player removed", "stream", s.key, "sessionId", p.ID(), "playerCount", len(s.consumers),
		"watched", time.Since(c.joinedAt).Round(time.Millisecond))
	return true
}

// relay fans tag out to every consumer in join order and returns the players
// whose delivery failed.
func (s *Source) relay(tag *Tag) []Player {
	if s.publisher == nil {
		return nil
	}
	s.tags++
	s.bytes += uint64(len(tag.Data))

	script, audio, video := s.publisher.CachedTags()

	var failed []Player
	for _, c := range s.consumers {
		if err := c.deliver(tag, script, audio, video); err != nil {
			slog.Debug("Relay failed", "stream", s.key, "sessionId", c.player.ID(), "err", err)
			failed = append(failed, c.player)
		}
	}
	return failed
}

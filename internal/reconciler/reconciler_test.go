package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/frameline/screenroom/internal/core"
	"github.com/rs/zerolog"
)

type fakePlayer struct {
	position float64
	playing  bool

	seeks  []float64
	plays  int
	pauses int
	stops  int
}

func (p *fakePlayer) Play()  { p.playing = true; p.plays++ }
func (p *fakePlayer) Pause() { p.playing = false; p.pauses++ }
func (p *fakePlayer) Stop()  { p.playing = false; p.stops++ }
func (p *fakePlayer) Seek(position float64) {
	p.position = position
	p.seeks = append(p.seeks, position)
}
func (p *fakePlayer) Position() float64 { return p.position }
func (p *fakePlayer) Playing() bool     { return p.playing }

func liveSession(position float64, playing bool) *core.Session {
	session := core.NewScheduledSession("filmX", time.Now())
	session.GoLive("host-1", time.Now())
	session.Position = position
	session.IsPlaying = playing
	return session
}

func TestApplySeeksOnLargeDrift(t *testing.T) {
	player := &fakePlayer{position: 104.0, playing: true}
	rec := New(player, zerolog.Nop())

	rec.Apply(liveSession(100.0, true))

	assert.Equal(t, []float64{100.0}, player.seeks)
	assert.True(t, player.playing)
}

func TestApplyToleratesSmallDrift(t *testing.T) {
	player := &fakePlayer{position: 101.5, playing: true}
	rec := New(player, zerolog.Nop())

	rec.Apply(liveSession(100.0, true))

	assert.Empty(t, player.seeks)
	assert.Equal(t, 101.5, player.position)
}

func TestApplyMirrorsTransport(t *testing.T) {
	player := &fakePlayer{position: 100.0, playing: false}
	rec := New(player, zerolog.Nop())

	rec.Apply(liveSession(100.0, true))
	assert.Equal(t, 1, player.plays)

	player.position = 100.0
	rec.Apply(liveSession(100.0, false))
	assert.Equal(t, 1, player.pauses)

	// matching state issues no redundant commands
	rec.Apply(liveSession(100.0, false))
	assert.Equal(t, 1, player.plays)
	assert.Equal(t, 1, player.pauses)
}

func TestApplyTalkbackStopsPlayback(t *testing.T) {
	player := &fakePlayer{position: 50.0, playing: true}
	rec := New(player, zerolog.Nop())

	talkbacks := 0
	rec.OnTalkback(func() { talkbacks++ })

	session := liveSession(50.0, true)
	session.TalkbackActive = true
	rec.Apply(session)

	assert.Equal(t, 1, player.stops)
	assert.Equal(t, 1, talkbacks)
	assert.False(t, player.playing)
	assert.Empty(t, player.seeks)
}

func TestApplyEnded(t *testing.T) {
	player := &fakePlayer{playing: true}
	rec := New(player, zerolog.Nop())

	var endedWith *core.Session
	endedCalls := 0
	rec.OnEnded(func(session *core.Session) {
		endedWith = session
		endedCalls++
	})

	session := liveSession(10.0, true)
	session.End("host-1", time.Now())
	rec.Apply(session)

	assert.Equal(t, 1, player.stops)
	assert.Equal(t, 1, endedCalls)
	assert.Equal(t, session, endedWith)
}

func TestApplyRawMalformedTreatedAsEnded(t *testing.T) {
	player := &fakePlayer{playing: true}
	rec := New(player, zerolog.Nop())

	endedCalls := 0
	rec.OnEnded(func(session *core.Session) {
		assert.Nil(t, session)
		endedCalls++
	})

	rec.ApplyRaw([]byte("{broken"))

	assert.Equal(t, 1, player.stops)
	assert.Equal(t, 1, endedCalls)
}

func TestApplyRawLiveDocument(t *testing.T) {
	player := &fakePlayer{position: 200.0, playing: false}
	rec := New(player, zerolog.Nop())

	payload, err := liveSession(100.0, true).ToJSON()
	assert.Nil(t, err)

	rec.ApplyRaw(payload)

	assert.Equal(t, []float64{100.0}, player.seeks)
	assert.True(t, player.playing)
}

// Package acsmedia adapts an Azure Communication Services bidirectional media stream to
// the realtime API message format, so that a phone call can take the place of the browser.
package acsmedia

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/a-h/voicerag/rtmt"
)

const (
	KindAudioData     = "AudioData"
	KindAudioMetadata = "AudioMetadata"
	KindStopAudio     = "StopAudio"
)

type acsMessage struct {
	Kind      string     `json:"kind"`
	AudioData *audioData `json:"audioData"`
	StopAudio *struct{}  `json:"stopAudio,omitempty"`
}

type audioData struct {
	Data   string `json:"data"`
	Silent bool   `json:"silent,omitempty"`
}

// sessionUpdate is sent to the middle tier when the call connects. The media stream is
// configured for 24kHz mono PCM, which matches pcm16.
var sessionUpdate = []byte(`{"type":"session.update","session":{"input_audio_format":"pcm16","output_audio_format":"pcm16","modalities":["audio","text"]}}`)

func New(conn rtmt.Conn) *Adapter {
	return &Adapter{conn: conn}
}

// Adapter is an rtmt.Conn over an ACS media stream. Read is not safe for concurrent use.
type Adapter struct {
	conn    rtmt.Conn
	started bool
}

func (a *Adapter) Read(ctx context.Context) ([]byte, error) {
	if !a.started {
		a.started = true
		return sessionUpdate, nil
	}
	for {
		msg, err := a.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		var m acsMessage
		if err = json.Unmarshal(msg, &m); err != nil {
			return nil, fmt.Errorf("acsmedia: invalid message: %w", err)
		}
		if m.Kind != KindAudioData || m.AudioData == nil || m.AudioData.Data == "" {
			continue
		}
		return json.Marshal(map[string]any{
			"type":  "input_audio_buffer.append",
			"audio": m.AudioData.Data,
		})
	}
}

func (a *Adapter) Write(ctx context.Context, msg []byte) error {
	var m struct {
		Type  string `json:"type"`
		Delta string `json:"delta"`
	}
	if err := json.Unmarshal(msg, &m); err != nil {
		return fmt.Errorf("acsmedia: invalid realtime message: %w", err)
	}
	var out acsMessage
	switch m.Type {
	case "response.audio.delta":
		out = acsMessage{Kind: KindAudioData, AudioData: &audioData{Data: m.Delta}}
	case "input_audio_buffer.speech_started":
		// The caller is talking over the assistant.
		out = acsMessage{Kind: KindStopAudio, StopAudio: &struct{}{}}
	default:
		return nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return a.conn.Write(ctx, b)
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/axtra/traincall/internal/call"
	"github.com/axtra/traincall/internal/config"
	"github.com/axtra/traincall/internal/credential"
	"github.com/axtra/traincall/internal/observability"
	"github.com/axtra/traincall/internal/persona"
	"github.com/axtra/traincall/internal/speech"
	"github.com/axtra/traincall/internal/transcript"
	"github.com/axtra/traincall/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace + "_console")
	creds := credential.NewClient(cfg.ServerBaseURL, cfg.UserID)
	factory, engine := selectTransport(cfg.TransportMode)

	orch := call.NewOrchestrator(creds, factory, cfg.UserID, metrics)

	feed, err := transcript.NewFeedClient(cfg.ServerBaseURL)
	if err != nil {
		log.Fatalf("feed client init failed: %v", err)
	}
	defer feed.Close()

	orch.SetTranscriptHook(func(e call.TranscriptEntry) {
		if err := feed.PublishEntry(e.Seq, string(e.Role), e.Text, string(e.Emotion), e.Timestamp); err != nil {
			log.Printf("feed publish failed: %v", err)
		}
	})

	recognizer := speech.NewManager(engine, cfg.RecognitionLanguage, cfg.RecognitionRetryMax,
		func(u speech.Utterance) {
			if u.Final {
				orch.AddTranscript(call.RoleLocal, u.Text, call.EmotionUnspecified)
				metrics.RecognitionEvents.WithLabelValues("final").Inc()
			} else {
				metrics.RecognitionEvents.WithLabelValues("interim").Inc()
			}
		},
		func(s speech.State) {
			log.Printf("recognition state: %s", s)
		},
	)

	fmt.Println("training console ready. commands: call <scenario>, say <text>, agent <emotion> <text>,")
	fmt.Println("mute, pause, resume, audio, status, hangup, quit")

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch strings.ToLower(cmd) {
		case "call":
			if rest == "" {
				fmt.Println("usage: call <scenario>")
				continue
			}
			hangup(orch, recognizer, feed)
			if err := orch.Connect(ctx, rest); err != nil {
				log.Printf("connect failed: %v", err)
				continue
			}
			s := orch.Snapshot()
			if p, fellBack := persona.Resolve(s.RoomName); p != nil {
				if fellBack {
					log.Printf("scenario %q unknown, using persona %s", rest, p.ID)
				}
				fmt.Printf("connected to %s as %s (%s voice)\n", s.RoomName, p.Name, p.Voice)
			}
			if err := feed.Connect(ctx, s.RoomName, cfg.UserID); err != nil {
				log.Printf("transcript feed unavailable: %v", err)
			}
			if err := recognizer.Start(); err != nil {
				log.Printf("local transcription unavailable: %v", err)
			}
		case "say":
			if rest == "" {
				fmt.Println("usage: say <text>")
				continue
			}
			if rec := engine.Last(); rec != nil && recognizer.Active() {
				rec.EmitResult(speech.Result{Final: []string{rest}})
			} else {
				orch.AddTranscript(call.RoleLocal, rest, call.EmotionUnspecified)
			}
		case "agent":
			emotionRaw, text, _ := strings.Cut(rest, " ")
			if strings.TrimSpace(text) == "" {
				fmt.Println("usage: agent <emotion> <text>")
				continue
			}
			orch.AddTranscript(call.RoleRemote, strings.TrimSpace(text), call.ParseEmotion(emotionRaw))
		case "mute":
			if err := orch.ToggleMute(ctx); err != nil {
				log.Printf("mute failed: %v", err)
				continue
			}
			fmt.Printf("muted: %v\n", orch.Snapshot().Muted)
		case "pause":
			orch.Pause()
		case "resume":
			orch.Resume()
		case "audio":
			if err := orch.EnableAudio(ctx); err != nil {
				log.Printf("enable audio failed: %v", err)
			}
		case "status":
			printStatus(orch.Snapshot(), recognizer)
		case "hangup":
			hangup(orch, recognizer, feed)
		case "quit", "exit":
			hangup(orch, recognizer, feed)
			return
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

// selectTransport picks the media stack for this build. The in-process
// transport also provides the recognition engine so fake sessions can drive
// the full transcript path.
func selectTransport(mode string) (transport.Factory, *speech.MockEngine) {
	engine := &speech.MockEngine{}
	switch mode {
	case "fake":
		log.Printf("transport: fake (in-process)")
	case "livekit":
		log.Fatalf("APP_TRANSPORT_MODE=livekit requires a build with the media SDK; use fake")
	case "auto":
		log.Printf("transport: fake (no media SDK in this build)")
	}
	return &transport.MockFactory{}, engine
}

func hangup(orch *call.Orchestrator, recognizer *speech.Manager, feed *transcript.FeedClient) {
	s := orch.Snapshot()
	recognizer.Stop()
	orch.Disconnect()
	if s.Status == call.StatusConnected || s.Status == call.StatusPaused {
		if err := feed.Bye(s.DurationSec); err != nil {
			log.Printf("feed bye failed: %v", err)
		}
		fmt.Printf("call ended after %ds\n", s.DurationSec)
	}
}

func printStatus(s call.Session, recognizer *speech.Manager) {
	fmt.Printf("status=%s room=%s duration=%ds muted=%v agent_speaking=%v awaiting_audio=%v recognition=%s\n",
		s.Status, s.RoomName, s.DurationSec, s.Muted, s.AgentSpeaking, s.AwaitingAudio, recognizer.State())
	if s.LastError != "" {
		fmt.Printf("last error: %s\n", s.LastError)
	}
	for _, e := range s.Transcript {
		fmt.Printf("  [%d] %s: %s\n", e.Seq, e.Role, e.Text)
	}
}

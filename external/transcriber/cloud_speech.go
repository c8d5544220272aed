package transcriber

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/ferndesk/roomscribe/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	audioChannelCount     = 1
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
}

// CloudSpeechEngine opens one streaming recognition session per
// participant against the Cloud Speech v2 API. Streams are short-lived by
// contract (the service ends them after idle timeouts and a 5 minute
// cap); ended streams surface as OnClosed and the caller reopens on the
// next speech chunk.
type CloudSpeechEngine struct {
	projectID       string
	credentialsJSON string
	defaultLanguage string
	location        string
	model           string
}

func NewCloudSpeechEngine(cfg CloudSpeechConfig) transcriber.Engine {
	return &CloudSpeechEngine{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		defaultLanguage: cfg.Language,
		location:        strings.TrimSpace(cfg.Location),
		model:           strings.TrimSpace(cfg.Model),
	}
}

func (e *CloudSpeechEngine) OpenSession(ctx context.Context, cfg transcriber.SessionConfig, observer transcriber.SessionObserver) (transcriber.Session, error) {
	language := cfg.Language
	if language == "" {
		language = e.defaultLanguage
	}
	slog.Info("opening cloud speech session",
		"session_id", cfg.SessionID, "location", e.location, "language", language, "model", e.model)

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(e.credentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}

	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if e.location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", e.location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	recognizer := fmt.Sprintf("projects/%s/locations/%s/recognizers/_", e.projectID, e.location)
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		Recognizer: recognizer,
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Model:         e.model,
					LanguageCodes: []string{language},
					DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
						ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
							Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
							SampleRateHertz:   int32(cfg.SampleRate),
							AudioChannelCount: audioChannelCount,
						},
					},
					Features: &speechpb.RecognitionFeatures{},
				},
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: false},
			},
		},
	}); err != nil {
		_ = stream.CloseSend()
		_ = client.Close()
		return nil, err
	}
	slog.Info("cloud speech stream initialized", "session_id", cfg.SessionID)

	s := &cloudSpeechSession{
		sessionID: cfg.SessionID,
		stream:    stream,
		client:    client,
	}
	go s.receiveLoop(observer)

	return s, nil
}

type cloudSpeechSession struct {
	sessionID string

	mu     sync.Mutex
	closed bool
	stream speechpb.Speech_StreamingRecognizeClient
	client *speech.Client
}

func (s *cloudSpeechSession) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{
			Audio: pcm,
		},
	})
}

func (s *cloudSpeechSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.stream.CloseSend(); err != nil {
		_ = s.client.Close()
		return err
	}
	return s.client.Close()
}

// receiveLoop drains recognition responses. Expected stream ends (EOF,
// cancellation, the service's idle and max-duration aborts) surface as
// OnClosed; anything else is OnError.
func (s *cloudSpeechSession) receiveLoop(observer transcriber.SessionObserver) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			switch {
			case err == io.EOF || strings.Contains(err.Error(), "context canceled"):
				slog.Info("cloud speech receive loop stopped", "session_id", s.sessionID, "reason", err.Error())
				observer.OnClosed()
			case isExpectedStreamEnd(err):
				slog.Warn("cloud speech stream ended by service", "session_id", s.sessionID, "error", err)
				observer.OnClosed()
			default:
				observer.OnError(err)
			}
			return
		}
		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			observer.OnResult(transcriber.Result{
				Text:       alts[0].GetTranscript(),
				IsFinal:    result.GetIsFinal(),
				Confidence: float64(alts[0].GetConfidence()),
			})
		}
	}
}

func isExpectedStreamEnd(err error) bool {
	if strings.Contains(strings.ToLower(err.Error()), "eof") {
		return true
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return false
	}
	msg := strings.ToLower(st.Message())
	return strings.Contains(msg, "max duration of 5 minutes") ||
		strings.Contains(msg, "stream timed out after receiving no more client requests")
}

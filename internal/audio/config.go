// Package audio describes and validates the stream settings the handheld
// recorder declares for an uploaded clip.
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// Limits for stream settings.
const (
	MaxSampleRateHz = 192000
	MaxChannels     = 8
)

// Error message formats.
const (
	errFmtEncodingValues   = "%w: encoding must be one of %s"
	errFmtSampleRateRange  = "%w: sampleRateHz must be between 1 and %d"
	errFmtChannelsRange    = "%w: audioChannelCount must be between 1 and %d"
	errFmtLanguageRequired = "%w: languageCode cannot be empty"
)

// ErrInvalidConfig wraps all stream setting validation failures.
var ErrInvalidConfig = errors.New("invalid audio config")

// Encoding represents a wire encoding the recorder can upload.
type Encoding string

// Encodings the transcription provider accepts.
const (
	EncodingLinear16 Encoding = "LINEAR16"
	EncodingFLAC     Encoding = "FLAC"
	EncodingMuLaw    Encoding = "MULAW"
	EncodingOggOpus  Encoding = "OGG_OPUS"
)

// supportedEncodings is the allowed set, in the order it is reported.
var supportedEncodings = []Encoding{
	EncodingLinear16,
	EncodingFLAC,
	EncodingMuLaw,
	EncodingOggOpus,
}

// Config carries the audio stream settings an upload declares.
type Config struct {
	Encoding          Encoding `json:"encoding"`
	SampleRateHz      int      `json:"sampleRateHz"`
	LanguageCode      string   `json:"languageCode"`
	AudioChannelCount int      `json:"audioChannelCount"`
}

// Validate checks that the declared settings are within reasonable bounds.
func (c *Config) Validate() error {
	encodingErr := validateEncoding(c.Encoding)
	if encodingErr != nil {
		return encodingErr
	}

	sampleRateErr := validateSampleRate(c.SampleRateHz)
	if sampleRateErr != nil {
		return sampleRateErr
	}

	channelsErr := validateChannels(c.AudioChannelCount)
	if channelsErr != nil {
		return channelsErr
	}

	if strings.TrimSpace(c.LanguageCode) == "" {
		return fmt.Errorf(errFmtLanguageRequired, ErrInvalidConfig)
	}

	return nil
}

func validateEncoding(encoding Encoding) error {
	for _, supported := range supportedEncodings {
		if encoding == supported {
			return nil
		}
	}

	names := make([]string, 0, len(supportedEncodings))
	for _, supported := range supportedEncodings {
		names = append(names, string(supported))
	}

	return fmt.Errorf(errFmtEncodingValues, ErrInvalidConfig, strings.Join(names, ", "))
}

func validateSampleRate(sampleRateHz int) error {
	if sampleRateHz < 1 || sampleRateHz > MaxSampleRateHz {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidConfig, MaxSampleRateHz)
	}

	return nil
}

func validateChannels(channels int) error {
	if channels < 1 || channels > MaxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidConfig, MaxChannels)
	}

	return nil
}

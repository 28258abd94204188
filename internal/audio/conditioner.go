package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Conditioning defaults. Browser-captured audio is frequently far too quiet,
// which is the dominant cause of downstream ASR hallucination, so loudness
// normalization targets a speech-friendly mean level.
const (
	DefaultTargetDB        = -20.0
	DefaultGainToleranceDB = 10.0
	DefaultMaxGainDB       = 50.0
	DefaultSilenceDB       = "-30dB"
	DefaultMinSilenceSec   = 0.5

	// MinDurationSec is the shortest input worth sending to the engines;
	// anything below it short-circuits to an empty successful result.
	MinDurationSec = 0.5

	// ffmpeg outputs smaller than this are treated as empty/broken.
	minOutputBytes = 1000
)

// CommandRunner executes an external tool and returns stdout, stderr and the
// run error. Injectable so tests never exec ffmpeg.
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// VolumeStats holds the loudness measurement of an audio file in dB.
type VolumeStats struct {
	MeanDB float64
	MaxDB  float64
}

// Conditioned is the outcome of conditioning one input file. Path is the
// waveform both the ASR and diarization engines must consume; Cleanup removes
// the intermediate temp files and must run only after all engines finished,
// because temporal alignment depends on them seeing the exact same file.
type Conditioned struct {
	Path        string
	DurationSec float64

	temps []string
}

// Cleanup deletes every intermediate file produced during conditioning.
// Deletion failures are logged, never escalated.
func (c *Conditioned) Cleanup(log *logrus.Logger) {
	for _, p := range c.temps {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", p).Warn("failed to remove temp audio file")
		}
	}
	c.temps = nil
}

// Conditioner runs the deterministic audio transforms that precede the ML
// engines: container normalization, duration probing, loudness normalization
// and optional silence trimming. Every step is best effort; a failing step
// falls back to the previous stage's file.
type Conditioner struct {
	TargetDB        float64
	GainToleranceDB float64
	MaxGainDB       float64
	SilenceDB       string
	MinSilenceSec   float64
	TmpDir          string

	Run CommandRunner
	Log *logrus.Logger
}

func NewConditioner(log *logrus.Logger) *Conditioner {
	return &Conditioner{
		TargetDB:        DefaultTargetDB,
		GainToleranceDB: DefaultGainToleranceDB,
		MaxGainDB:       DefaultMaxGainDB,
		SilenceDB:       DefaultSilenceDB,
		MinSilenceSec:   DefaultMinSilenceSec,
		Run:             execRunner,
		Log:             log,
	}
}

// Condition prepares an audio file for the engines. The input file is never
// mutated; the returned Conditioned may point at the input itself or at a
// temporary file, and the caller owns the Cleanup obligation either way.
func (c *Conditioner) Condition(ctx context.Context, path string, wantTrim bool) *Conditioned {
	out := &Conditioned{Path: path}
	log := c.Log.WithField("audio", path)

	// WebM from browser recorders often lacks duration metadata; transcode
	// to canonical mono 16 kHz PCM before probing or measuring loudness.
	if needsContainerFix(path) {
		if wav, err := c.convertToWAV(ctx, path); err != nil {
			log.WithError(err).Warn("container normalization failed, using original file")
		} else {
			out.temps = append(out.temps, wav)
			out.Path = wav
		}
	}

	out.DurationSec = c.probeDuration(ctx, out.Path)
	if out.DurationSec < MinDurationSec {
		// Too short for the engines; the pipeline short-circuits on this.
		return out
	}

	if normalized, err := c.normalizeLoudness(ctx, out.Path); err != nil {
		log.WithError(err).Warn("loudness normalization skipped")
	} else if normalized != "" {
		out.temps = append(out.temps, normalized)
		out.Path = normalized
	}

	if wantTrim {
		if trimmed, err := c.trimSilence(ctx, out.Path); err != nil {
			log.WithError(err).Warn("silence trimming failed, using untrimmed audio")
		} else {
			out.temps = append(out.temps, trimmed)
			out.Path = trimmed
		}
	}

	return out
}

func needsContainerFix(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".webm")
}

// inputArgs builds the ffmpeg input flags, forcing the matroska demuxer for
// WebM so misdetection does not break duration handling.
func inputArgs(path string) []string {
	if needsContainerFix(path) {
		return []string{"-f", "matroska", "-i", path}
	}
	return []string{"-i", path}
}

func (c *Conditioner) convertToWAV(ctx context.Context, path string) (string, error) {
	out, err := c.tempWAV()
	if err != nil {
		return "", err
	}

	args := append([]string{"-y"}, inputArgs(path)...)
	args = append(args, "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", out)
	if _, stderr, err := c.Run(ctx, "ffmpeg", args...); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg convert: %w: %s", err, tail(stderr))
	}
	if err := checkOutput(out); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

// probeDuration returns the duration in seconds, or 0 when the probe fails.
func (c *Conditioner) probeDuration(ctx context.Context, path string) float64 {
	stdout, _, err := c.Run(ctx, "ffprobe",
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(stdout)), 64)
	if err != nil {
		return 0
	}
	return d
}

// measureLoudness runs ffmpeg's volumedetect filter and parses the mean and
// peak levels from its stderr report.
func (c *Conditioner) measureLoudness(ctx context.Context, path string) (*VolumeStats, error) {
	args := append(inputArgs(path), "-af", "volumedetect", "-f", "null", "-")
	_, stderr, err := c.Run(ctx, "ffmpeg", args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg volumedetect: %w", err)
	}
	return parseVolumeStats(string(stderr))
}

func parseVolumeStats(report string) (*VolumeStats, error) {
	var mean, max *float64
	for _, line := range strings.Split(report, "\n") {
		if v, ok := parseDBField(line, "mean_volume:"); ok {
			mean = &v
		}
		if v, ok := parseDBField(line, "max_volume:"); ok {
			max = &v
		}
	}
	if mean == nil {
		return nil, fmt.Errorf("no mean_volume in volumedetect output")
	}
	stats := &VolumeStats{MeanDB: *mean, MaxDB: *mean}
	if max != nil {
		stats.MaxDB = *max
	}
	return stats, nil
}

func parseDBField(line, field string) (float64, bool) {
	i := strings.Index(line, field)
	if i < 0 {
		return 0, false
	}
	rest := line[i+len(field):]
	if j := strings.Index(rest, "dB"); j >= 0 {
		rest = rest[:j]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// computeGain returns the gain to apply to reach target loudness and whether
// normalization should run at all. Within tolerance of the target the audio
// is left alone; gain is clamped to avoid runaway amplification of noise.
func computeGain(target, mean, tolerance, maxGain float64) (float64, bool) {
	gain := target - mean
	if gain < tolerance && gain > -tolerance {
		return 0, false
	}
	if gain > maxGain {
		gain = maxGain
	}
	return gain, true
}

// normalizeLoudness measures the file and, when it is too far from the target
// level, re-encodes with a gain plus a peak limiter. Returns "" when the
// level is already acceptable.
func (c *Conditioner) normalizeLoudness(ctx context.Context, path string) (string, error) {
	stats, err := c.measureLoudness(ctx, path)
	if err != nil {
		return "", err
	}

	gain, apply := computeGain(c.TargetDB, stats.MeanDB, c.GainToleranceDB, c.MaxGainDB)
	if !apply {
		return "", nil
	}

	c.Log.WithFields(logrus.Fields{
		"mean_db": stats.MeanDB,
		"max_db":  stats.MaxDB,
		"gain_db": gain,
	}).Info("normalizing audio loudness")

	out, err := c.tempWAV()
	if err != nil {
		return "", err
	}

	filter := fmt.Sprintf("volume=%sdB,alimiter=limit=0.95:attack=5:release=50",
		strconv.FormatFloat(gain, 'f', -1, 64))
	args := append([]string{"-y"}, inputArgs(path)...)
	args = append(args, "-af", filter, "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", out)
	if _, stderr, err := c.Run(ctx, "ffmpeg", args...); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg normalize: %w: %s", err, tail(stderr))
	}
	if err := checkOutput(out); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

// trimSilence removes leading and trailing low-energy regions.
func (c *Conditioner) trimSilence(ctx context.Context, path string) (string, error) {
	out, err := c.tempWAV()
	if err != nil {
		return "", err
	}

	filter := fmt.Sprintf(
		"silenceremove=start_periods=1:start_duration=%[1]v:start_threshold=%[2]s:stop_periods=-1:stop_duration=%[1]v:stop_threshold=%[2]s",
		c.MinSilenceSec, c.SilenceDB)
	args := append([]string{"-y"}, inputArgs(path)...)
	args = append(args, "-af", filter, "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le", out)
	if _, stderr, err := c.Run(ctx, "ffmpeg", args...); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg silenceremove: %w: %s", err, tail(stderr))
	}
	if err := checkOutput(out); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

func (c *Conditioner) tempWAV() (string, error) {
	f, err := os.CreateTemp(c.TmpDir, "yooscribe-*.wav")
	if err != nil {
		return "", err
	}
	f.Close()
	return f.Name(), nil
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() < minOutputBytes {
		return fmt.Errorf("output file too small (%d bytes), likely no audio content", info.Size())
	}
	return nil
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[len(s)-300:]
	}
	return s
}

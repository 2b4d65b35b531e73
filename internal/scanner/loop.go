// Package scanner samples frames from a live video source and tries to
// decode a QR symbol from each one. The hardware boundary is the
// FrameSource interface; everything above it is plain Go.
package scanner

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"meetup-app/pkg/logger"
)

// ErrNoSymbol is returned by a manual capture when the frame held no
// decodable symbol, so the user gets explicit feedback instead of a
// silently spinning loop.
var ErrNoSymbol = errors.New("no code found in frame")

// ErrDecodeBusy means another decode attempt is already running.
var ErrDecodeBusy = errors.New("a decode attempt is already in progress")

// FrameSource is an acquired media stream. Close must stop every
// underlying track; the loop guarantees it is called on all exit paths.
type FrameSource interface {
	Frame() (image.Image, error)
	Close() error
}

// Loop repeatedly samples the source and decodes until a symbol is found,
// the caller stops it, or the source fails. One Loop per scan view.
type Loop struct {
	source   FrameSource
	interval time.Duration
	onDecode func(string)
	onError  func(error)

	reader gozxing.Reader

	decodeMu sync.Mutex // single in-flight decode guard
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewLoop(source FrameSource, interval time.Duration, onDecode func(string), onError func(error)) *Loop {
	return &Loop{
		source:   source,
		interval: interval,
		onDecode: onDecode,
		onError:  onError,
		reader:   qrcode.NewQRCodeReader(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run samples on every interval tick until a symbol decodes or the loop is
// stopped. It releases the source before returning, on every path.
func (l *Loop) Run() {
	defer close(l.done)
	defer l.Stop()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			text, err := l.sample()
			switch {
			case err == nil:
				// First hit wins; stop sampling immediately.
				l.onDecode(text)
				return
			case errors.Is(err, ErrNoSymbol) || errors.Is(err, ErrDecodeBusy):
				// Keep scanning.
			default:
				logger.Error("Scan loop aborted: %v", err)
				if l.onError != nil {
					l.onError(err)
				}
				return
			}
		}
	}
}

// CaptureOnce samples a single frame on demand. Unlike the continuous
// loop it reports ErrNoSymbol so the caller can tell the user nothing was
// found.
func (l *Loop) CaptureOnce() (string, error) {
	select {
	case <-l.stop:
		return "", errors.New("scanner is stopped")
	default:
	}
	return l.sample()
}

// Stop halts sampling and releases the source. Safe to call from any
// goroutine, any number of times.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
		if err := l.source.Close(); err != nil {
			logger.Warn("Failed to release media source: %v", err)
		}
	})
}

// Done is closed once Run has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) sample() (string, error) {
	if !l.decodeMu.TryLock() {
		return "", ErrDecodeBusy
	}
	defer l.decodeMu.Unlock()

	frame, err := l.source.Frame()
	if err != nil {
		return "", err
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(frame)
	if err != nil {
		return "", ErrNoSymbol
	}
	result, err := l.reader.Decode(bmp, nil)
	if err != nil {
		return "", ErrNoSymbol
	}
	return result.GetText(), nil
}

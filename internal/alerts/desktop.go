package alerts

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Desktop notification limits.
const (
	desktopTitleMax = 64
	desktopBodyMax  = 256
)

// notifyFunc shows one desktop notification; swapped in tests.
type notifyFunc func(ctx context.Context, urgency, title, body string) error

// Desktop shows native desktop notifications via notify-send.
type Desktop struct {
	notify notifyFunc
}

// NewDesktop creates the desktop channel.
func NewDesktop() *Desktop {
	return &Desktop{notify: notifySend}
}

func (d *Desktop) Name() string  { return "desktop" }
func (d *Desktop) Enabled() bool { return true }

// Send truncates to the notification limits and shows the popup. Failures
// are transient: the notification daemon may simply not be up yet.
func (d *Desktop) Send(ctx context.Context, a domain.Alert) error {
	urgency := "normal"
	if a.Priority == domain.PriorityCritical {
		urgency = "critical"
	}
	title := truncate(a.Title, desktopTitleMax)
	body := truncate(a.Body, desktopBodyMax)

	if err := d.notify(ctx, urgency, title, body); err != nil {
		return fmt.Errorf("%w: desktop notify: %v", domain.ErrChannelTransient, err)
	}
	return nil
}

func notifySend(ctx context.Context, urgency, title, body string) error {
	return exec.CommandContext(ctx, "notify-send", "--urgency", urgency, "--app-name", "equityrun", title, body).Run()
}

// playFunc plays the alert tone; swapped in tests.
type playFunc func(ctx context.Context) error

// Audio plays a short tone for audible alerts.
type Audio struct {
	play playFunc
}

// NewAudio creates the audio channel.
func NewAudio() *Audio {
	return &Audio{play: playTone}
}

func (a *Audio) Name() string  { return "audio" }
func (a *Audio) Enabled() bool { return true }

func (a *Audio) Send(ctx context.Context, _ domain.Alert) error {
	if err := a.play(ctx); err != nil {
		return fmt.Errorf("%w: audio: %v", domain.ErrChannelTransient, err)
	}
	return nil
}

func playTone(ctx context.Context) error {
	// paplay ships with every pulse/pipewire desktop; the sample is part of
	// the freedesktop sound theme.
	return exec.CommandContext(ctx, "paplay", "/usr/share/sounds/freedesktop/stereo/bell.oga").Run()
}

package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"smokehouse/internal/config"
	"smokehouse/internal/logger"
	"smokehouse/internal/models"
)

const (
	// ProfileExt is the suffix of profile files, local and remote.
	ProfileExt = ".prof"
	// MaxLineLen is the longest profile line considered; the rest is dropped.
	MaxLineLen = 255

	fieldCount = 10
)

var (
	ErrFieldCount = errors.New("profile line must have exactly 10 fields")
	ErrBadNumber  = errors.New("profile line has a malformed number")
)

// StepData is the transport-neutral form of a step. Durations are in the
// units of the line format: minutes for minTime, seconds for the fan cycle.
type StepData struct {
	Name        string  `json:"name"`
	SetpointC   float64 `json:"tSet"`
	MeatTargetC float64 `json:"tMeat"`
	MinTimeMin  int     `json:"minTime"`
	PowerMode   int     `json:"powerMode"`
	Smoke       int     `json:"smoke"`
	FanMode     int     `json:"fanMode"`
	FanOnSec    int     `json:"fanOn"`
	FanOffSec   int     `json:"fanOff"`
	UseMeatTemp bool    `json:"useMeatTemp"`
}

// Parser turns profile text into steps, clamping every numeric field.
type Parser struct {
	limits   config.Limits
	maxSteps int
	log      *logger.Logger
}

func NewParser(limits config.Limits, maxSteps int, log *logger.Logger) *Parser {
	if log == nil {
		log = logger.Nop()
	}
	return &Parser{limits: limits, maxSteps: maxSteps, log: log}
}

// ParseLine parses one line. ok is false for blank and comment lines.
func (p *Parser) ParseLine(line string) (step models.Step, ok bool, err error) {
	if len(line) > MaxLineLen {
		line = line[:MaxLineLen]
	}
	line = strings.TrimLeft(line, " \t")
	line = strings.TrimRight(line, "\r\n ")
	if line == "" || line[0] == '#' {
		return models.Step{}, false, nil
	}

	fields := strings.Split(line, ";")
	if len(fields) != fieldCount {
		return models.Step{}, false, fmt.Errorf("%w: got %d", ErrFieldCount, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var set, meat float64
	var minutes, power, smoke, fan, fanOn, fanOff int
	floats := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"tSet", fields[1], &set},
		{"tMeat", fields[2], &meat},
	}
	for _, f := range floats {
		v, perr := strconv.ParseFloat(f.raw, 64)
		if perr != nil {
			return models.Step{}, false, fmt.Errorf("%w: %s=%q", ErrBadNumber, f.name, f.raw)
		}
		*f.dst = v
	}
	ints := []struct {
		name string
		raw  string
		dst  *int
	}{
		{"minTime", fields[3], &minutes},
		{"powerMode", fields[4], &power},
		{"smoke", fields[5], &smoke},
		{"fanMode", fields[6], &fan},
		{"fanOn", fields[7], &fanOn},
		{"fanOff", fields[8], &fanOff},
	}
	for _, f := range ints {
		v, perr := strconv.Atoi(f.raw)
		if perr != nil {
			return models.Step{}, false, fmt.Errorf("%w: %s=%q", ErrBadNumber, f.name, f.raw)
		}
		*f.dst = v
	}

	l := p.limits
	name := truncateUTF8(fields[0], models.MaxStepNameLen)
	step = models.Step{
		Name:        name,
		SetpointC:   clampF(set, l.MinSetC, l.MaxSetC),
		MeatTargetC: clampF(meat, l.MinMeatC, l.MaxMeatC),
		MinDuration: time.Duration(max(minutes, 0)) * time.Minute,
		PowerMode:   clampI(power, l.MinPower, l.MaxPower),
		Smoke:       clampI(smoke, l.MinSmoke, l.MaxSmoke),
		FanMode:     clampI(fan, 0, l.MaxFanMode),
		FanOn:       time.Duration(max(fanOn, 1)) * time.Second,
		FanOff:      time.Duration(max(fanOff, 1)) * time.Second,
		UseMeatTemp: parseBool(fields[9]),
	}
	return step, true, nil
}

// Parse reads a whole profile, skipping invalid lines with a warning and
// stopping at the step limit.
func (p *Parser) Parse(r io.Reader, name string) (models.Profile, error) {
	prof := models.Profile{Name: name}
	br := bufio.NewReader(r)
	lineNo := 0
	for len(prof.Steps) < p.maxSteps {
		line, err := br.ReadString('\n')
		if line != "" {
			lineNo++
			step, ok, perr := p.ParseLine(line)
			switch {
			case perr != nil:
				p.log.Warnw("invalid_profile_line", "profile", name, "line", lineNo, "err", perr)
			case ok:
				prof.Steps = append(prof.Steps, step)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return prof, fmt.Errorf("read profile %s: %w", name, err)
		}
	}
	return prof, nil
}

// ParseString is Parse over an in-memory body.
func (p *Parser) ParseString(body, name string) (models.Profile, error) {
	return p.Parse(strings.NewReader(body), name)
}

// FromData converts structured step data, applying the same clamps as the
// line format.
func (p *Parser) FromData(d StepData) (models.Step, error) {
	step, ok, err := p.ParseLine(FormatData(d))
	if err != nil {
		return models.Step{}, err
	}
	if !ok {
		return models.Step{}, fmt.Errorf("%w: empty step", ErrFieldCount)
	}
	return step, nil
}

// ToData is the structured form of a parsed step.
func ToData(s models.Step) StepData {
	return StepData{
		Name:        s.Name,
		SetpointC:   s.SetpointC,
		MeatTargetC: s.MeatTargetC,
		MinTimeMin:  int(s.MinDuration / time.Minute),
		PowerMode:   s.PowerMode,
		Smoke:       s.Smoke,
		FanMode:     s.FanMode,
		FanOnSec:    int(s.FanOn / time.Second),
		FanOffSec:   int(s.FanOff / time.Second),
		UseMeatTemp: s.UseMeatTemp,
	}
}

// FormatData renders one line of the profile format.
func FormatData(d StepData) string {
	meat := "0"
	if d.UseMeatTemp {
		meat = "1"
	}
	return strings.Join([]string{
		sanitizeName(d.Name),
		strconv.FormatFloat(d.SetpointC, 'f', -1, 64),
		strconv.FormatFloat(d.MeatTargetC, 'f', -1, 64),
		strconv.Itoa(d.MinTimeMin),
		strconv.Itoa(d.PowerMode),
		strconv.Itoa(d.Smoke),
		strconv.Itoa(d.FanMode),
		strconv.Itoa(d.FanOnSec),
		strconv.Itoa(d.FanOffSec),
		meat,
	}, ";")
}

// FormatProfile renders steps back to profile text.
func FormatProfile(steps []models.Step) string {
	var b strings.Builder
	for _, s := range steps {
		b.WriteString(FormatData(ToData(s)))
		b.WriteByte('\n')
	}
	return b.String()
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ';', '\n', '\r':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
}

func parseBool(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}

func clampF(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func clampI(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

// truncateUTF8 cuts s to at most n bytes without splitting a character.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

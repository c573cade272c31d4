package liveness

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Mode Mode

	MinFaceRatio   float64 `validate:"gte=0,lte=1"`
	MaxFaceRatio   float64 `validate:"gte=0,lte=1,gtefield=MinFaceRatio"`
	MinFaceFrontal float64 `validate:"gte=0,lte=1"`

	YawThreshold     float64 `validate:"gte=0,lte=90"`
	PitchThreshold   float64 `validate:"gte=0,lte=90"`
	RollThreshold    float64 `validate:"gte=0,lte=90"`
	PosePenaltyRange float64 `validate:"gt=0"`

	MinBoxScore             float64 `validate:"gte=0,lte=1"`
	MinFaceScore            float64 `validate:"gte=0,lte=1"`
	MinRealScore            float64 `validate:"gte=0,lte=1"`
	MinLiveScore            float64 `validate:"gte=0,lte=1"`
	RequireFullFaceInBounds bool

	MinMouthOpenPercent  float64 `validate:"gte=0,lte=1"`
	BlinkClosedThreshold float64 `validate:"gte=0,lte=1"`
	BlinkOpenThreshold   float64 `validate:"gte=0,lte=1,gtefield=BlinkClosedThreshold"`
	NodThreshold         float64 `validate:"gt=0,lte=90"`

	SilentDetectCount int `validate:"gte=1"`
	RetentionCapacity int `validate:"gte=1"`

	ActionList    []Action
	ActionCount   int           `validate:"gte=0"`
	ActionTimeout time.Duration `validate:"gt=0"`
	ActionRandom  bool

	FrameDelay        time.Duration `validate:"gte=0"`
	IdleTimeout       time.Duration `validate:"gt=0"`
	VideoLoadTimeout  time.Duration `validate:"gt=0"`
	MultipleFaceGrace time.Duration `validate:"gte=0"`

	SpoofStrikeLimit int `validate:"gte=1"`
	ErrorTolerance   int `validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		Mode:                    ModeSilentLiveness,
		MinFaceRatio:            0.3,
		MaxFaceRatio:            0.9,
		MinFaceFrontal:          0.8,
		YawThreshold:            15,
		PitchThreshold:          15,
		RollThreshold:           15,
		PosePenaltyRange:        30,
		MinBoxScore:             0.6,
		MinFaceScore:            0.6,
		MinRealScore:            0.6,
		MinLiveScore:            0.5,
		RequireFullFaceInBounds: true,
		MinMouthOpenPercent:     0.3,
		BlinkClosedThreshold:    0.2,
		BlinkOpenThreshold:      0.3,
		NodThreshold:            10,
		SilentDetectCount:       3,
		RetentionCapacity:       5,
		ActionList:              []Action{ActionBlink, ActionMouthOpen, ActionNod},
		ActionCount:             0,
		ActionTimeout:           10 * time.Second,
		ActionRandom:            true,
		FrameDelay:              100 * time.Millisecond,
		IdleTimeout:             30 * time.Second,
		VideoLoadTimeout:        10 * time.Second,
		MultipleFaceGrace:       time.Second,
		SpoofStrikeLimit:        5,
		ErrorTolerance:          5,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func (c Config) Validate() error {
	if err := configValidator().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	seen := make(map[Action]bool, len(c.ActionList))
	for _, a := range c.ActionList {
		if a < ActionBlink || a > ActionNod {
			return fmt.Errorf("%w: unknown action %d", ErrInvalidConfig, int(a))
		}
		seen[a] = true
	}

	if c.RequiredActions() > len(seen) {
		return fmt.Errorf("%w: liveness_action_count %d exceeds %d distinct actions",
			ErrInvalidConfig, c.ActionCount, len(seen))
	}
	return nil
}

func (c Config) Clone() Config {
	c.ActionList = slices.Clone(c.ActionList)
	return c
}

// RequiredActions is the number of challenges the session will issue after
// silent collection. Collection mode never challenges.
func (c Config) RequiredActions() int {
	if c.Mode == ModeCollection {
		return 0
	}
	return c.ActionCount
}

type options struct {
	Mode *string `json:"mode"`

	MinFaceRatio   *float64 `json:"min_face_ratio"`
	MaxFaceRatio   *float64 `json:"max_face_ratio"`
	MinFaceFrontal *float64 `json:"min_face_frontal"`

	YawThreshold   *float64 `json:"yaw_threshold"`
	PitchThreshold *float64 `json:"pitch_threshold"`
	RollThreshold  *float64 `json:"roll_threshold"`

	MinBoxScore             *float64 `json:"min_box_score"`
	MinFaceScore            *float64 `json:"min_face_score"`
	MinRealScore            *float64 `json:"min_real_score"`
	MinLiveScore            *float64 `json:"min_live_score"`
	RequireFullFaceInBounds *bool    `json:"require_full_face_in_bounds"`

	MinMouthOpenPercent *float64 `json:"min_mouth_open_percent"`
	NodThreshold        *float64 `json:"nod_threshold"`

	SilentDetectCount *int `json:"silent_detect_count"`
	RetentionCapacity *int `json:"retention_capacity"`

	ActionList    []string `json:"liveness_action_list"`
	ActionCount   *int     `json:"liveness_action_count"`
	ActionTimeout *float64 `json:"liveness_action_timeout"`
	ActionRandom  *bool    `json:"liveness_action_random"`

	FrameDelay        *float64 `json:"detection_frame_delay"`
	IdleTimeout       *float64 `json:"detection_idle_timeout"`
	VideoLoadTimeout  *float64 `json:"video_load_timeout"`
	MultipleFaceGrace *float64 `json:"multiple_face_grace"`

	SpoofStrikeLimit *int `json:"spoof_strike_limit"`
	ErrorTolerance   *int `json:"detection_error_tolerance"`
}

// ParseOptions applies host-supplied options on top of base. Unknown keys are
// ignored; durations are given in milliseconds.
func ParseOptions(base Config, raw map[string]any) (Config, error) {
	cfg := base.Clone()
	if len(raw) == 0 {
		return cfg, cfg.Validate()
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var opts options
	if err := json.Unmarshal(data, &opts); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if opts.Mode != nil {
		if err := cfg.Mode.UnmarshalText([]byte(*opts.Mode)); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	setFloat(&cfg.MinFaceRatio, opts.MinFaceRatio)
	setFloat(&cfg.MaxFaceRatio, opts.MaxFaceRatio)
	setFloat(&cfg.MinFaceFrontal, opts.MinFaceFrontal)
	setFloat(&cfg.YawThreshold, opts.YawThreshold)
	setFloat(&cfg.PitchThreshold, opts.PitchThreshold)
	setFloat(&cfg.RollThreshold, opts.RollThreshold)
	setFloat(&cfg.MinBoxScore, opts.MinBoxScore)
	setFloat(&cfg.MinFaceScore, opts.MinFaceScore)
	setFloat(&cfg.MinRealScore, opts.MinRealScore)
	setFloat(&cfg.MinLiveScore, opts.MinLiveScore)
	setFloat(&cfg.MinMouthOpenPercent, opts.MinMouthOpenPercent)
	setFloat(&cfg.NodThreshold, opts.NodThreshold)

	if opts.RequireFullFaceInBounds != nil {
		cfg.RequireFullFaceInBounds = *opts.RequireFullFaceInBounds
	}
	if opts.ActionRandom != nil {
		cfg.ActionRandom = *opts.ActionRandom
	}

	setInt(&cfg.SilentDetectCount, opts.SilentDetectCount)
	setInt(&cfg.RetentionCapacity, opts.RetentionCapacity)
	setInt(&cfg.ActionCount, opts.ActionCount)
	setInt(&cfg.SpoofStrikeLimit, opts.SpoofStrikeLimit)
	setInt(&cfg.ErrorTolerance, opts.ErrorTolerance)

	setMillis(&cfg.ActionTimeout, opts.ActionTimeout)
	setMillis(&cfg.FrameDelay, opts.FrameDelay)
	setMillis(&cfg.IdleTimeout, opts.IdleTimeout)
	setMillis(&cfg.VideoLoadTimeout, opts.VideoLoadTimeout)
	setMillis(&cfg.MultipleFaceGrace, opts.MultipleFaceGrace)

	if opts.ActionList != nil {
		actions := make([]Action, 0, len(opts.ActionList))
		for _, name := range opts.ActionList {
			var a Action
			if err := a.UnmarshalText([]byte(name)); err != nil {
				return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			actions = append(actions, a)
		}
		cfg.ActionList = actions
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setMillis(dst *time.Duration, v *float64) {
	if v != nil {
		*dst = time.Duration(*v * float64(time.Millisecond))
	}
}

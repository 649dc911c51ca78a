package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"festivalbot/internal/groupfilter"
	"festivalbot/internal/holiday"
)

// ErrInvalid marks every configuration failure. The wrapped error names the field.
var ErrInvalid = errors.New("invalid config")

var (
	vOnce  sync.Once
	vInst  *validator.Validate
	vTrans ut.Translator
)

func structValidator() (*validator.Validate, ut.Translator) {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		// prefer json tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		vInst, vTrans = v, trans
	})
	return vInst, vTrans
}

// Validate checks struct tags and the semantic rules that tags cannot express.
// All problems are reported together, wrapped in ErrInvalid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}

	var errs []error
	v, trans := structValidator()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				field := strings.TrimPrefix(fe.Namespace(), "Config.")
				errs = append(errs, fmt.Errorf("%s: %s", field, fe.Translate(trans)))
			}
		} else {
			errs = append(errs, err)
		}
	}

	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone)); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if _, _, err := ParseClock(cfg.TriggerTime); err != nil {
		errs = append(errs, fmt.Errorf("trigger_time: %w", err))
	}
	if cfg.GroupFilter.Mode != "" {
		if _, err := groupfilter.ParseMode(cfg.GroupFilter.Mode); err != nil {
			errs = append(errs, fmt.Errorf("group_filter.mode: %w", err))
		}
	}
	if len(cfg.CustomHolidays) > 0 {
		if _, _, err := holiday.ParseCustom(cfg.CustomHolidays); err != nil {
			errs = append(errs, fmt.Errorf("custom_holidays: %w", err))
		}
	}

	durations := map[string]string{
		"greeting.retry_delay":  cfg.Greeting.RetryDelay,
		"greeting.timeout":      cfg.Greeting.Timeout,
		"storage.busy_timeout":  cfg.Storage.BusyTimeout,
		"storage.retention":     cfg.Storage.Retention,
		"storage.prune_every":   cfg.Storage.PruneEvery,
		"dispatch.timeout":      cfg.Dispatch.Timeout,
		"telegram.poll_timeout": cfg.Telegram.PollTimeout,
	}
	for i, p := range cfg.LLM.Providers {
		durations["llm.providers["+strconv.Itoa(i)+"].timeout"] = p.Timeout
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	seen := map[string]bool{}
	for _, p := range cfg.LLM.Providers {
		id := strings.TrimSpace(p.ID)
		if id != "" && seen[id] {
			errs = append(errs, fmt.Errorf("llm.providers: duplicate id %q", id))
		}
		seen[id] = true
	}
	if id := strings.TrimSpace(cfg.LLM.ProviderID); id != "" && !seen[id] {
		errs = append(errs, fmt.Errorf("llm.provider_id: unknown provider %q", id))
	}

	if cfg.Dispatch.Transport == "telegram" && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token: required when dispatch.transport is telegram"))
	}
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("logging.telegram.enabled: requires telegram.token"))
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: must be a numeric chat id"))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

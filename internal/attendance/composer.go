package attendance

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/classroll/attendance/internal/apierr"
	"github.com/classroll/attendance/internal/model"
)

// MaxRemarks bounds free-text remarks.
const MaxRemarks = 1000

// Draft holds the composer's inputs. Validation never mutates it, so a
// failed submit keeps everything the user typed.
type Draft struct {
	CourseID    int64  `json:"courseId" validate:"required,gt=0"`
	ScheduleID  *int64 `json:"scheduleId" validate:"omitempty,gt=0"`
	Date        string `json:"date" validate:"required,isodate"`
	StartTime   string `json:"startTime" validate:"required,clock"`
	EndTime     string `json:"endTime" validate:"required,clock"`
	SessionType string `json:"sessionType" validate:"required,sessiontype"`
	Remarks     string `json:"remarks" validate:"remarks"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func draftValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		// Use JSON tag names for errors instead of Go struct names.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
			_, err := model.ParseDate(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, err := model.ParseClock(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("sessiontype", func(fl validator.FieldLevel) bool {
			_, err := model.ParseSessionType(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("remarks", func(fl validator.FieldLevel) bool {
			return utf8.RuneCountInString(fl.Field().String()) <= MaxRemarks
		})
		v.RegisterStructValidation(endAfterStart, Draft{})
		validate = v
	})
	return validate
}

func endAfterStart(sl validator.StructLevel) {
	d := sl.Current().Interface().(Draft)
	start, err1 := model.ParseClock(d.StartTime)
	end, err2 := model.ParseClock(d.EndTime)
	if err1 != nil || err2 != nil {
		return
	}
	if !end.After(start) {
		sl.ReportError(d.EndTime, "endTime", "EndTime", "endafter", "")
	}
}

var tagMessages = map[string]string{
	"required":    "this field is required",
	"gt":          "this field is required",
	"isodate":     "must be a date in YYYY-MM-DD form",
	"clock":       "must be a time in HH:MM form",
	"sessiontype": "must be one of LECTURE, LABORATORY, QUIZ, EXAM, OTHER",
	"remarks":     "must be at most 1000 characters",
	"endafter":    "end time must be after start time",
}

// Validate checks the draft before anything is sent.
func (d Draft) Validate() error {
	err := draftValidator().Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]apierr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		fields = append(fields, apierr.FieldError{Field: fe.Field(), Message: msg})
	}
	return apierr.NewValidationError(fields...)
}

// Request converts a valid draft into the create-session body.
func (d Draft) Request() (model.NewSession, error) {
	if err := d.Validate(); err != nil {
		return model.NewSession{}, err
	}
	st, _ := model.ParseSessionType(d.SessionType)
	return model.NewSession{
		CourseID:    d.CourseID,
		ScheduleID:  d.ScheduleID,
		Date:        strings.TrimSpace(d.Date),
		StartTime:   strings.TrimSpace(d.StartTime),
		EndTime:     strings.TrimSpace(d.EndTime),
		SessionType: st,
		Remarks:     strings.TrimSpace(d.Remarks),
	}, nil
}

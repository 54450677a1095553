package registration

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"dinnerhop-bot/internal/apperrors"
	"dinnerhop-bot/internal/models"
	"dinnerhop-bot/internal/util"
)

const (
	CourseStarter = "starter"
	CourseMain    = "main"
	CourseDessert = "dessert"

	LocationCreator = "creator"
	LocationPartner = "partner"
)

type SoloForm struct {
	CoursePreference   string `form:"course_preference" validate:"omitempty,oneof=starter main dessert"`
	KitchenAvailable   bool   `form:"kitchen_available"`
	MainCoursePossible bool   `form:"main_course_possible"`
	DietaryPreference  string `form:"dietary_preference" validate:"max=200"`
}

type PartnerExisting struct {
	Email string `form:"partner_email" validate:"required,email"`
}

type PartnerExternal struct {
	Name         string `form:"partner_name" validate:"required,max=120"`
	Email        string `form:"partner_email" validate:"required,email"`
	Diet         string `form:"partner_diet" validate:"max=200"`
	FieldOfStudy string `form:"partner_field_of_study" validate:"max=120"`
}

type TeamForm struct {
	CookingLocation  string           `form:"cooking_location" validate:"required,oneof=creator partner"`
	CoursePreference string           `form:"course_preference" validate:"omitempty,oneof=starter main dessert"`
	PartnerExisting  *PartnerExisting `validate:"-"`
	PartnerExternal  *PartnerExternal `validate:"-"`
}

// Form is everything the user entered in one registration attempt.
type Form struct {
	Mode     models.Mode `form:"mode" validate:"required,oneof=solo team"`
	EventID  string      `form:"event_id" validate:"required"`
	FeeCents int64       `form:"fee" validate:"gte=0"`

	Solo *SoloForm `validate:"-"`
	Team *TeamForm `validate:"-"`

	// Profile is the acting account, when known.
	Profile *models.Profile `validate:"-"`

	// IdempotencyKey is reused across retries of the same attempt.
	IdempotencyKey string `validate:"-"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// normalized lower-cases the enum answers so "Main" and "main" mean the
// same. f is not modified.
func normalized(f Form) Form {
	if f.Solo != nil {
		s := *f.Solo
		s.CoursePreference = util.Lower(s.CoursePreference)
		f.Solo = &s
	}
	if f.Team != nil {
		t := *f.Team
		t.CoursePreference = util.Lower(t.CoursePreference)
		t.CookingLocation = util.Lower(t.CookingLocation)
		f.Team = &t
	}
	f.Mode = models.Mode(util.Lower(string(f.Mode)))
	return f
}

// Validate runs field rules and the cross-field rules. It never touches
// the network.
func Validate(v *validator.Validate, f Form) error {
	var fields []apperrors.FieldError
	f = normalized(f)

	fields = append(fields, structErrors(v, f)...)
	switch f.Mode {
	case models.ModeSolo:
		if f.Solo == nil {
			fields = append(fields, apperrors.FieldError{Field: "solo", Message: "Solo details are missing."})
			break
		}
		fields = append(fields, structErrors(v, *f.Solo)...)
		if f.Solo.CoursePreference == CourseMain && !canCookMain(f) {
			fields = append(fields, apperrors.FieldError{
				Field:   "course_preference",
				Message: "Main course needs a kitchen and main-course capability.",
			})
		}
	case models.ModeTeam:
		if f.Team == nil {
			fields = append(fields, apperrors.FieldError{Field: "team", Message: "Team details are missing."})
			break
		}
		fields = append(fields, structErrors(v, *f.Team)...)
		switch {
		case f.Team.PartnerExisting != nil && f.Team.PartnerExternal != nil:
			fields = append(fields, apperrors.FieldError{Field: "partner", Message: "Choose either an existing account or an external partner, not both."})
		case f.Team.PartnerExisting != nil:
			fields = append(fields, structErrors(v, *f.Team.PartnerExisting)...)
		case f.Team.PartnerExternal != nil:
			fields = append(fields, structErrors(v, *f.Team.PartnerExternal)...)
		default:
			fields = append(fields, apperrors.FieldError{Field: "partner", Message: "A team needs a partner."})
		}
	}

	if len(fields) > 0 {
		return apperrors.Validation(fields...)
	}
	return nil
}

func canCookMain(f Form) bool {
	if f.Solo != nil && f.Solo.KitchenAvailable && f.Solo.MainCoursePossible {
		return true
	}
	return f.Profile != nil && f.Profile.CanCookMain()
}

func structErrors(v *validator.Validate, s any) []apperrors.FieldError {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []apperrors.FieldError{{Field: "form", Message: err.Error()}}
	}
	out := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apperrors.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", name)
	case "email":
		return fmt.Sprintf("%s must be a valid email address.", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("%s is too long.", name)
	default:
		return fmt.Sprintf("%s is invalid.", name)
	}
}

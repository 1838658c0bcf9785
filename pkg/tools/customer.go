package tools

import (
	"context"
	"strings"

	"github.com/leadvoice/leadvoice/pkg/session"
)

type saveCustomerName struct{}

func NewSaveCustomerName() Executor { return saveCustomerName{} }

func (saveCustomerName) Name() string { return "save_customer_name" }

func (saveCustomerName) Definition() Definition {
	return Definition{
		Name:        "save_customer_name",
		Description: "Save the customer's name once they provide it.",
		Parameters: objectSchema([]string{"name"}, map[string]any{
			"name": stringSchema("The customer's full name"),
		}),
	}
}

func (saveCustomerName) Execute(_ context.Context, sess *session.Session, input map[string]any) Outcome {
	name := stringArg(input, "name")
	if name == "" {
		return errorOutcome("ERROR: No name provided. Please ask the customer for their name.")
	}
	sess.SetName(name)
	return Outcome{Result: "Customer name saved: " + name}
}

type saveCustomerEmail struct{}

func NewSaveCustomerEmail() Executor { return saveCustomerEmail{} }

func (saveCustomerEmail) Name() string { return "save_customer_email" }

func (saveCustomerEmail) Definition() Definition {
	return Definition{
		Name:        "save_customer_email",
		Description: "Save the customer's email address once they provide it.",
		Parameters: objectSchema([]string{"email"}, map[string]any{
			"email": stringSchema("The customer's email address"),
		}),
	}
}

func (saveCustomerEmail) Execute(_ context.Context, sess *session.Session, input map[string]any) Outcome {
	email := stringArg(input, "email")
	if email == "" || !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return errorOutcome("ERROR: Invalid email format. Please ask the customer to repeat their email address.")
	}
	sess.SetEmail(email)
	return Outcome{Result: "Customer email saved: " + email}
}

type saveCustomerPhone struct{}

func NewSaveCustomerPhone() Executor { return saveCustomerPhone{} }

func (saveCustomerPhone) Name() string { return "save_customer_phone" }

func (saveCustomerPhone) Definition() Definition {
	return Definition{
		Name:        "save_customer_phone",
		Description: "Save the customer's phone number once they provide it.",
		Parameters: objectSchema([]string{"phone"}, map[string]any{
			"phone": stringSchema("The customer's phone number"),
		}),
	}
}

func (saveCustomerPhone) Execute(_ context.Context, sess *session.Session, input map[string]any) Outcome {
	phone := stringArg(input, "phone")
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 {
		return errorOutcome("ERROR: Invalid phone number. Please ask the customer to repeat their phone number.")
	}
	sess.SetPhone(phone)
	return Outcome{Result: "Customer phone saved: " + phone}
}

type checkCustomerInfoComplete struct{}

func NewCheckCustomerInfoComplete() Executor { return checkCustomerInfoComplete{} }

func (checkCustomerInfoComplete) Name() string { return "check_customer_info_complete" }

func (checkCustomerInfoComplete) Definition() Definition {
	return Definition{
		Name:        "check_customer_info_complete",
		Description: "Check whether name, email, and phone have all been collected.",
		Parameters:  objectSchema(nil, map[string]any{}),
	}
}

func (checkCustomerInfoComplete) Execute(_ context.Context, sess *session.Session, _ map[string]any) Outcome {
	if missing := sess.MissingContactFields(); len(missing) > 0 {
		return Outcome{Result: "Customer information is incomplete. Still missing: " + strings.Join(missing, ", ") + "."}
	}
	sess.MarkInfoComplete()
	return Outcome{Result: "All customer information collected. Ready to transfer to sales."}
}

package fee

import (
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/bursar/core"
)

var (
	feeHeadTag  = "feehead"
	feeHeadText = "invalid fee head"

	payModeTag  = "paymode"
	payModeText = "invalid payment mode"

	docTypeTag  = "doctype"
	docTypeText = "invalid document type"

	docNumberTag  = "docnumber"
	docNumberText = "document number does not match the document type"

	txnRefTag  = "txnref"
	txnRefText = "a transaction reference is required for this payment mode"

	docPatterns = map[DocType]*regexp.Regexp{
		DocTypeAadhaar:  regexp.MustCompile(`^[0-9]{12}$`),
		DocTypePAN:      regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`),
		DocTypePassport: regexp.MustCompile(`^[A-Z][0-9]{7}$`),
	}

	docNumberReplacer = strings.NewReplacer(" ", "", "-", "")
)

// InitValidators registers the fee validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(feeHeadTag, feeHeadValidation)
	core.RegisterCustomTranslation(validate, translator, feeHeadTag, feeHeadText)

	_ = validate.RegisterValidation(payModeTag, payModeValidation)
	core.RegisterCustomTranslation(validate, translator, payModeTag, payModeText)

	_ = validate.RegisterValidation(docTypeTag, docTypeValidation)
	core.RegisterCustomTranslation(validate, translator, docTypeTag, docTypeText)

	validate.RegisterStructValidation(invoiceStructValidation, SubmitInvoice{})
	core.RegisterCustomTranslation(validate, translator, docNumberTag, docNumberText)
	core.RegisterCustomTranslation(validate, translator, txnRefTag, txnRefText)
}

// Validate cleans and validates the submitted invoice data.
func (si *SubmitInvoice) Validate(validate *validator.Validate) error {
	si.Clean()
	return validate.Struct(si)
}

// ValidDocNumber reports whether number is a valid identity document number for docType.
func ValidDocNumber(docType DocType, number string) bool {
	re, ok := docPatterns[docType]
	return ok && re.MatchString(normaliseDocNumber(number))
}

func normaliseDocNumber(s string) string {
	return strings.ToUpper(docNumberReplacer.Replace(strings.TrimSpace(s)))
}

// Custom Validators

func feeHeadValidation(fl validator.FieldLevel) bool {
	return FeeHead(fl.Field().String()).Valid()
}

func payModeValidation(fl validator.FieldLevel) bool {
	return PaymentMode(fl.Field().String()).Valid()
}

func docTypeValidation(fl validator.FieldLevel) bool {
	_, ok := docPatterns[DocType(fl.Field().String())]
	return ok
}

// invoiceStructValidation does struct level validation on SubmitInvoice:
// - a paid invoice needs a payment mode
// - non-cash payments need a transaction reference
// - document type and number go together, and the number must match the type
func invoiceStructValidation(sl validator.StructLevel) {
	si, ok := sl.Current().Interface().(SubmitInvoice)
	if !ok {
		return
	}

	if si.Paid && si.PaymentMode == "" {
		sl.ReportError(si.PaymentMode, "payment_mode", "PaymentMode", "required", "")
	}
	if si.PaymentMode.RequiresTransactionRef() && si.TransactionRef == "" {
		sl.ReportError(si.TransactionRef, "transaction_ref", "TransactionRef", txnRefTag, "")
	}

	switch {
	case si.DocType == "" && si.DocNumber != "":
		sl.ReportError(si.DocType, "doc_type", "DocType", "required", "")
	case si.DocType != "" && si.DocNumber == "":
		sl.ReportError(si.DocNumber, "doc_number", "DocNumber", "required", "")
	case si.DocType != "" && !ValidDocNumber(si.DocType, si.DocNumber):
		if _, known := docPatterns[si.DocType]; known { // unknown types are reported by the doctype tag
			sl.ReportError(si.DocNumber, "doc_number", "DocNumber", docNumberTag, "")
		}
	}
}

package transport

import (
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"google.golang.org/grpc/codes"

	"quoteengine/pkg/quote/domain/model"
)

type Kind string

const (
	KindInvalidConfiguration Kind = "INVALID_CONFIGURATION"
	KindInvalidTransition    Kind = "INVALID_TRANSITION"
	KindAlreadyAssigned      Kind = "ALREADY_ASSIGNED"
	KindNoEligibleSupplier   Kind = "NO_ELIGIBLE_SUPPLIER"
	KindNotFound             Kind = "NOT_FOUND"
	KindConflict             Kind = "CONFLICT"
	KindForbidden            Kind = "FORBIDDEN"
	KindPreconditionFailed   Kind = "PRECONDITION_FAILED"
	KindInvalidArgument      Kind = "INVALID_ARGUMENT"
	KindInternal             Kind = "INTERNAL"
)

type kindInfo struct {
	httpStatus int
	grpcCode   codes.Code
	// messages are indexed like supportedLanguages
	messages [2]string
}

var supportedLanguages = []language.Tag{language.English, language.Russian}

var matcher = language.NewMatcher(supportedLanguages)

var kinds = map[Kind]kindInfo{
	KindInvalidConfiguration: {http.StatusUnprocessableEntity, codes.InvalidArgument, [2]string{
		"scoring weights must be non-negative and sum to 100",
		"веса оценки должны быть неотрицательными и в сумме давать 100",
	}},
	KindInvalidTransition: {http.StatusConflict, codes.FailedPrecondition, [2]string{
		"this action is not allowed in the quote's current status",
		"действие недоступно в текущем статусе предложения",
	}},
	KindAlreadyAssigned: {http.StatusConflict, codes.AlreadyExists, [2]string{
		"a supplier is already assigned to this line item",
		"для этой позиции поставщик уже назначен",
	}},
	KindNoEligibleSupplier: {http.StatusUnprocessableEntity, codes.FailedPrecondition, [2]string{
		"no supplier can fulfil the request",
		"нет поставщика, способного выполнить запрос",
	}},
	KindNotFound: {http.StatusNotFound, codes.NotFound, [2]string{
		"not found",
		"не найдено",
	}},
	KindConflict: {http.StatusConflict, codes.Aborted, [2]string{
		"the quote was changed concurrently, reload and retry",
		"предложение было изменено, обновите данные и повторите",
	}},
	KindForbidden: {http.StatusForbidden, codes.PermissionDenied, [2]string{
		"you are not allowed to perform this action",
		"у вас нет прав на это действие",
	}},
	KindPreconditionFailed: {http.StatusUnprocessableEntity, codes.FailedPrecondition, [2]string{
		"the quote does not meet the requirements for this action",
		"предложение не удовлетворяет условиям для этого действия",
	}},
	KindInvalidArgument: {http.StatusBadRequest, codes.InvalidArgument, [2]string{
		"invalid request",
		"некорректный запрос",
	}},
	KindInternal: {http.StatusInternalServerError, codes.Internal, [2]string{
		"internal error",
		"внутренняя ошибка",
	}},
}

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{model.ErrInvalidConfiguration, KindInvalidConfiguration},
	{model.ErrInvalidTransition, KindInvalidTransition},
	{model.ErrAlreadyAssigned, KindAlreadyAssigned},
	{model.ErrNoEligibleSupplier, KindNoEligibleSupplier},
	{model.ErrQuoteNotFound, KindNotFound},
	{model.ErrLineItemNotFound, KindNotFound},
	{model.ErrPriceNotFound, KindNotFound},
	{model.ErrOptimisticLock, KindConflict},
	{model.ErrNotAuthorized, KindForbidden},
	{model.ErrQuoteCannotBeModified, KindPreconditionFailed},
	{model.ErrQuoteIsEmpty, KindPreconditionFailed},
	{model.ErrLineItemUnpriced, KindPreconditionFailed},
	{model.ErrNoSupplierAssigned, KindPreconditionFailed},
	{model.ErrSupplierNotAssigned, KindPreconditionFailed},
	{model.ErrSupplierHasNoOffer, KindPreconditionFailed},
	{model.ErrExpectedStatusRequired, KindInvalidArgument},
	{model.ErrInvalidQuantity, KindInvalidArgument},
	{model.ErrNegativePrice, KindInvalidArgument},
}

// ErrBadRequest marks malformed input rejected by a transport before it
// reaches the domain.
var ErrBadRequest = errors.New("bad request")

// Classify maps an error chain to the kind reported to clients.
func Classify(err error) Kind {
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	if errors.Is(err, ErrBadRequest) {
		return KindInvalidArgument
	}
	return KindInternal
}

func (k Kind) HTTPStatus() int {
	return kinds[k].httpStatus
}

func (k Kind) GRPCCode() codes.Code {
	return kinds[k].grpcCode
}

// Message returns the client message for the best match of acceptLanguage,
// an Accept-Language style list. English is the fallback.
func (k Kind) Message(acceptLanguage string) string {
	info, ok := kinds[k]
	if !ok {
		info = kinds[KindInternal]
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return info.messages[0]
	}
	_, idx, _ := matcher.Match(tags...)
	return info.messages[idx]
}

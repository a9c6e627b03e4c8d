package transport

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"quoteengine/pkg/quote/domain/model"
)

// Actor identity is asserted by the gateway in front of the service and
// passed along as these headers (or gRPC metadata keys, lower-cased).
const (
	ActorIDHeader            = "X-Actor-ID"
	ActorKindHeader          = "X-Actor-Kind"
	ActorProxyApprovalHeader = "X-Actor-Proxy-Approval"
)

func ParseActor(id, kind, proxyApproval string) (model.Actor, error) {
	actorID, err := uuid.Parse(id)
	if err != nil {
		return model.Actor{}, errors.Wrap(ErrBadRequest, "missing or malformed actor id")
	}

	actor := model.Actor{ID: actorID, Kind: model.ActorKind(kind)}
	switch actor.Kind {
	case model.ActorCustomer, model.ActorStaff, model.ActorSystem:
	default:
		return model.Actor{}, errors.Wrapf(ErrBadRequest, "unknown actor kind %q", kind)
	}

	if proxyApproval != "" {
		actor.CanProxyApproval, err = strconv.ParseBool(proxyApproval)
		if err != nil {
			return model.Actor{}, errors.Wrap(ErrBadRequest, "malformed proxy approval flag")
		}
	}
	return actor, nil
}

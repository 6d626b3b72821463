package ruleaction

import (
	"github.com/rs/zerolog/log"
	"gitlab.com/kittcore/kitt"
)

// New rule action from a declarative property bag. Returns nil if instanceType is
// missing or not supported by this build, callers must skip such actions.
func New(props kitt.Properties, dispatcher kitt.EventDispatcher) kitt.RuleAction {
	if dispatcher == nil {
		log.Warn().Msg("rule action requested without an event dispatcher")
		return nil
	}

	instanceType, ok := props.String(PropInstanceType)
	if !ok {
		log.Debug().Msg("rule action without instanceType")
		return nil
	}

	actionType, ok := kitt.ParseActionType(instanceType)
	if !ok {
		log.Debug().Str("instance_type", instanceType).Msg("unsupported declarative action")
		return nil
	}

	var action kitt.RuleAction
	switch actionType {
	case kitt.ActCancelRequest:
		action = NewCancelRequest(dispatcher)
	case kitt.ActRedirectRequest:
		action = NewRedirectRequest(dispatcher)
	case kitt.ActRedirectToEmptyDocument:
		action = NewRedirectToEmptyDocument(dispatcher)
	case kitt.ActSendMessageToExtension:
		action = NewSendMessageToExtension(dispatcher)
	case kitt.ActOnBeforeSendHeaders:
		action = NewOnBeforeSendHeaders(dispatcher)
	case kitt.ActOnHeadersReceived:
		action = NewOnHeadersReceived(dispatcher)
	case kitt.ActWebNavigation:
		action = NewWebNavigation(dispatcher)
	case kitt.ActOnBeforeRequest:
		action = NewOnBeforeRequest(dispatcher)
	default:
		log.Warn().Str("instance_type", instanceType).Msg("action type has no implementation")
		return nil
	}

	if configurable, ok := action.(kitt.Configurable); ok {
		configurable.Configure(props)
	}
	return action
}

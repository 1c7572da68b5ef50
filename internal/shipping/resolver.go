package shipping

import (
	"strings"

	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/notify"
	"github.com/syncbridge/internal/repository"
)

// 内部解析状态
const (
	stateResolved   = "resolved"
	stateFallback   = "resolved_via_fallback"
	stateUnresolved = "unresolved"
)

// Resolution 运输方式解析结果
//
// State 是内部三态，对外只暴露布尔视图：UsedFallback 表示
// 命中了默认运输方式而非显式映射，ShouldHoldOrder 表示完全
// 未能解析、订单需要挂起等待人工处理。
type Resolution struct {
	State            string
	ShippingMethodID uint
	MethodName       string
	MatchedScope     string // channel / client / global / channel_default / client_default
}

// Resolved 是否解析出了可用的运输方式（含回退）
func (r Resolution) Resolved() bool {
	return r.State != stateUnresolved
}

// UsedFallback 是否通过默认运输方式回退解析
func (r Resolution) UsedFallback() bool {
	return r.State == stateFallback
}

// ShouldHoldOrder 是否应挂起订单等待人工解决
func (r Resolution) ShouldHoldOrder() bool {
	return r.State == stateUnresolved
}

// Resolver 运输方式解析器
//
// 解析链共五级，前三级为显式映射（渠道级 > 租户级 > 全局），
// 后两级为默认方式回退（渠道默认 > 租户默认）。链上任何一级
// 命中即停止。全部落空时记录失配并指示挂单。
type Resolver struct {
	shippingRepo repository.ShippingRepository
	channelRepo  repository.ChannelRepository
	notifier     notify.Notifier
}

// NewResolver 创建运输方式解析器
func NewResolver(shippingRepo repository.ShippingRepository, channelRepo repository.ChannelRepository) *Resolver {
	return &Resolver{shippingRepo: shippingRepo, channelRepo: channelRepo}
}

// SetNotifier 注入告警通知器（构造后装配，可选）
func (s *Resolver) SetNotifier(notifier notify.Notifier) {
	s.notifier = notifier
}

// Resolve 解析订单的运输方式
//
// orderID 可为 0（订单尚未落库时的预解析），失配记录仍会写入，
// 只是不关联订单。同一渠道同一运输选择的失配只记录一次，
// 解决前不重复告警。
func (s *Resolver) Resolve(channel *models.Channel, orderID uint, shippingCode, shippingTitle string) (Resolution, error) {
	code := strings.TrimSpace(shippingCode)
	title := strings.TrimSpace(shippingTitle)

	if mapping, err := s.shippingRepo.FindChannelMapping(channel.Type, channel.ID, code, title); err != nil {
		return Resolution{State: stateUnresolved}, err
	} else if mapping != nil {
		return mappingResolution(mapping, "channel"), nil
	}

	if mapping, err := s.shippingRepo.FindClientMapping(channel.Type, channel.ClientID, code, title); err != nil {
		return Resolution{State: stateUnresolved}, err
	} else if mapping != nil {
		return mappingResolution(mapping, "client"), nil
	}

	if mapping, err := s.shippingRepo.FindGlobalMapping(channel.Type, code, title); err != nil {
		return Resolution{State: stateUnresolved}, err
	} else if mapping != nil {
		return mappingResolution(mapping, "global"), nil
	}

	if channel.DefaultShippingMethodID != nil {
		if method, err := s.shippingRepo.GetMethodByID(*channel.DefaultShippingMethodID); err != nil {
			return Resolution{State: stateUnresolved}, err
		} else if method != nil && method.IsActive {
			return Resolution{
				State:            stateFallback,
				ShippingMethodID: method.ID,
				MethodName:       method.Name,
				MatchedScope:     "channel_default",
			}, nil
		}
	}

	client, err := s.channelRepo.GetClientByID(channel.ClientID)
	if err != nil {
		return Resolution{State: stateUnresolved}, err
	}
	if client != nil && client.DefaultShippingMethodID != nil {
		if method, err := s.shippingRepo.GetMethodByID(*client.DefaultShippingMethodID); err != nil {
			return Resolution{State: stateUnresolved}, err
		} else if method != nil && method.IsActive {
			return Resolution{
				State:            stateFallback,
				ShippingMethodID: method.ID,
				MethodName:       method.Name,
				MatchedScope:     "client_default",
			}, nil
		}
	}

	if err := s.recordMismatch(channel, orderID, code, title); err != nil {
		return Resolution{State: stateUnresolved}, err
	}
	return Resolution{State: stateUnresolved}, nil
}

func mappingResolution(mapping *models.ShippingMethodMapping, scope string) Resolution {
	res := Resolution{
		State:            stateResolved,
		ShippingMethodID: mapping.ShippingMethodID,
		MatchedScope:     scope,
	}
	if mapping.ShippingMethod != nil {
		res.MethodName = mapping.ShippingMethod.Name
	}
	return res
}

func (s *Resolver) recordMismatch(channel *models.Channel, orderID uint, code, title string) error {
	exists, err := s.shippingRepo.HasUnresolvedMismatch(channel.ID, code, title)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	mismatch := &models.ShippingMethodMismatch{
		ClientID:      channel.ClientID,
		ChannelID:     channel.ID,
		ChannelType:   channel.Type,
		ShippingCode:  code,
		ShippingTitle: title,
	}
	if orderID != 0 {
		mismatch.OrderID = &orderID
	}
	if err := s.shippingRepo.CreateMismatch(mismatch); err != nil {
		return err
	}
	logger.Warnw("shipping_method_mismatch_recorded",
		"channel_id", channel.ID,
		"shipping_code", code,
		"shipping_title", title,
		"order_id", orderID)
	if s.notifier != nil {
		s.notifier.ShippingMismatch(channel.ID, code, title)
	}
	return nil
}

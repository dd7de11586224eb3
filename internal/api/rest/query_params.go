package rest

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/feral-file/ff-custody-ledger/internal/api/shared/constants"
	apierrors "github.com/feral-file/ff-custody-ledger/internal/api/shared/errors"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

// GetNotificationsQueryParams holds query parameters for GET /notifications
type GetNotificationsQueryParams struct {
	Anchor  uint64 `form:"anchor,default=0"`
	Limit   int    `form:"limit,default=50"`
	TokenID string `form:"token_id"`
	Type    string `form:"type"` // comma separated
}

// ParseGetNotificationsQuery parses query parameters for GET /notifications
func ParseGetNotificationsQuery(c *gin.Context) (*GetNotificationsQueryParams, error) {
	var params GetNotificationsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}
	return &params, nil
}

// Filter validates the parameters and converts them into a feed filter
func (p *GetNotificationsQueryParams) Filter() (domain.NotificationFilter, error) {
	if p.Limit <= 0 {
		return domain.NotificationFilter{}, apierrors.NewValidationError("limit must be positive")
	}
	if p.Limit > constants.MAX_NOTIFICATIONS_LIMIT {
		p.Limit = constants.MAX_NOTIFICATIONS_LIMIT
	}

	filter := domain.NotificationFilter{
		Anchor: p.Anchor,
		Limit:  p.Limit,
	}

	if p.TokenID != "" {
		tokenID, err := domain.ParseTokenID(p.TokenID)
		if err != nil {
			return filter, apierrors.NewValidationError(err.Error())
		}
		filter.TokenID = &tokenID
	}

	if p.Type != "" {
		for _, t := range strings.Split(p.Type, ",") {
			nt := domain.NotificationType(strings.TrimSpace(t))
			if !domain.IsValidNotificationType(nt) {
				return filter, apierrors.NewValidationError(fmt.Sprintf("unknown notification type: %s", t))
			}
			filter.Types = append(filter.Types, nt)
		}
	}

	return filter, nil
}

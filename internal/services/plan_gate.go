package services

import (
	"fmt"

	"gorm.io/gorm"

	apperrors "meikon/internal/errors"
	"meikon/internal/models"
)

// DefaultFreePlanTransactionLimit is the number of transactions a free user may keep.
const DefaultFreePlanTransactionLimit = 20

// CheckPlanLimit decides whether a user on plan who holds current
// transactions may add `adding` more. Only the free plan is capped. The
// same ceiling applies to single creates and bulk imports.
func CheckPlanLimit(plan models.Plan, current int64, adding int, ceiling int) error {
	if plan != models.PlanFree {
		return nil
	}
	if current+int64(adding) <= int64(ceiling) {
		return nil
	}
	if adding == 1 {
		return apperrors.WithMessage(apperrors.ErrPlanLimitReached,
			fmt.Sprintf("Free plan limit of %d transactions reached. Upgrade to PRO to keep adding transactions.", ceiling))
	}
	return apperrors.WithMessage(apperrors.ErrPlanLimitReached,
		fmt.Sprintf("Limit exceeded: you already have %d transactions and the free plan allows %d in total.", current, ceiling))
}

// enforcePlanLimit loads the user's plan and transaction count through tx and
// applies CheckPlanLimit. A user with no subscription row is on the free plan.
func enforcePlanLimit(tx *gorm.DB, userID string, adding, ceiling int) error {
	var sub models.Subscription
	var plan models.Plan
	err := tx.Where("user_id = ?", userID).Limit(1).Find(&sub).Error
	switch {
	case err != nil:
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	case sub.ID == "":
		plan = models.PlanFree
	default:
		plan = sub.EffectivePlan()
	}
	if plan != models.PlanFree {
		return nil
	}

	var count int64
	if err := tx.Model(&models.Transaction{}).Scopes(models.OwnedBy(userID)).Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return CheckPlanLimit(plan, count, adding, ceiling)
}

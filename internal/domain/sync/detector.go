package sync

import (
	"time"

	"gorm.io/datatypes"
)

type detection struct {
	status       Status
	conflictType *ConflictType
	serverData   datatypes.JSON
	head         EntityHead
	createHead   bool
}

// detect decides the outcome of op against the entity's current head.
// It never reads storage; the caller holds the head version it will
// compare-and-swap against. conflictPending reports that an unresolved
// conflict on the entity already carries op's payload.
func detect(head *EntityHead, op Operation, conflictPending bool, now time.Time) detection {
	if head == nil {
		return detection{
			status:     StatusCompleted,
			createHead: true,
			head: EntityHead{
				PartnerID:           op.PartnerID,
				EntityType:          op.EntityType,
				EntityID:            op.EntityID,
				AcceptedOperationID: op.ID,
				AcceptedData:        op.Data,
				AcceptedHash:        op.DataHash,
				Version:             1,
				UpdatedAt:           now,
			},
		}
	}

	next := *head
	next.Version = head.Version + 1
	next.UpdatedAt = now

	switch {
	case head.OpenConflicts > 0 && conflictPending:
		return detection{status: StatusCompleted, head: next}
	case head.OpenConflicts > 0:
		next.OpenConflicts++
		return conflictDetection(next, ConflictTypeOpenConflict, head.AcceptedData)
	case head.AcceptedHash == op.DataHash:
		return detection{status: StatusCompleted, head: next}
	default:
		next.OpenConflicts++
		return conflictDetection(next, ConflictTypeDataMismatch, head.AcceptedData)
	}
}

func conflictDetection(head EntityHead, conflictType ConflictType, serverData datatypes.JSON) detection {
	kind := conflictType
	return detection{
		status:       StatusConflict,
		conflictType: &kind,
		serverData:   cloneJSON(serverData),
		head:         head,
	}
}

func cloneJSON(value datatypes.JSON) datatypes.JSON {
	if value == nil {
		return nil
	}
	return append(datatypes.JSON(nil), value...)
}

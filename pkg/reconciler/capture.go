package reconciler

import (
	"errors"
	"fmt"

	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/store"
	"github.com/activecm/threatsync/pkg/visibility"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

//CaptureOrgc resolves a foreign organisation to its local id. Unknown
//organisations are created as non local shadow records. If the name is
//already taken locally it is suffixed with a fresh UUID.
func (r *Reconciler) CaptureOrgc(orgc *data.Organisation) (int64, error) {
	if orgc == nil || orgc.UUID == "" {
		return 0, errors.New("organisation reference has no UUID")
	}
	if id, ok := r.orgs.Get(orgc.UUID); ok {
		return id, nil
	}

	local, err := r.store.OrgByUUID(orgc.UUID)
	if err == nil {
		r.orgs.Add(orgc.UUID, local.ID)
		return local.ID, nil
	}
	if err != store.ErrNotFound {
		return 0, err
	}

	name := orgc.Name
	if name == "" {
		name = orgc.UUID
	}
	if _, err := r.store.OrgByName(name); err == nil {
		name = fmt.Sprintf("%s_%s", name, uuid.New().String())
	} else if err != store.ErrNotFound {
		return 0, err
	}

	created, err := r.store.CreateOrg(&data.Organisation{
		UUID:  orgc.UUID,
		Name:  name,
		Local: false,
	})
	if store.IsDuplicate(err) {
		// another worker may have captured the same organisation first
		local, lookupErr := r.store.OrgByUUID(orgc.UUID)
		if lookupErr == nil {
			r.orgs.Add(orgc.UUID, local.ID)
			return local.ID, nil
		}
		if lookupErr != store.ErrNotFound {
			return 0, lookupErr
		}
		// the name was taken concurrently by a different organisation
		name = fmt.Sprintf("%s_%s", name, uuid.New().String())
		created, err = r.store.CreateOrg(&data.Organisation{
			UUID:  orgc.UUID,
			Name:  name,
			Local: false,
		})
	}
	if err != nil {
		return 0, err
	}
	r.log.WithFields(log.Fields{
		"org_uuid": orgc.UUID,
		"org_name": name,
	}).Info("Captured remote organisation")
	r.orgs.Add(orgc.UUID, created.ID)
	return created.ID, nil
}

// sharingGroupAuthorized reports whether the acting user or the peer may
// use the local sharing group
func sharingGroupAuthorized(sg *data.SharingGroup, user data.User, server *data.Server) bool {
	if user.SiteAdmin || sg.OrgID == user.OrgID || sg.HasMember(user.OrgID) {
		return true
	}
	return visibility.ServerInSharingGroup(sg, server)
}

// captureSharingGroup maps the sharing group of a pulled entity onto the
// local sharing group with the same UUID. Entities whose group is unknown
// or unusable fall back to own organisation distribution.
func (r *Reconciler) captureSharingGroup(dist data.Distribution, ref *data.SharingGroup, user data.User, server *data.Server) (data.Distribution, int64) {
	if dist != data.SharingGroupDistribution {
		return dist, 0
	}
	if ref == nil || ref.UUID == "" {
		return data.OwnOrganisation, 0
	}
	local, err := r.store.SharingGroupByUUID(ref.UUID)
	if err != nil {
		if err != store.ErrNotFound {
			r.log.WithFields(log.Fields{
				"sharing_group_uuid": ref.UUID,
				"error":              err.Error(),
			}).Error("Could not load sharing group")
		}
		return data.OwnOrganisation, 0
	}
	if !sharingGroupAuthorized(local, user, server) {
		return data.OwnOrganisation, 0
	}
	return dist, local.ID
}

package entity

// Follow asks the followee to let the author follow them.
type Follow struct {
	Base

	// Author is the URI of the user initiating the follow.
	Author string `json:"author"`

	// Followee is the URI of the user being followed.
	Followee string `json:"followee"`
}

// EntityType implements Entity.
func (f *Follow) EntityType() string { return TypeFollow }

// Validate implements Entity.
func (f *Follow) Validate() error {
	if err := f.validateBase(); err != nil {
		return err
	}
	if err := validateAbsoluteURI("author", f.Author); err != nil {
		return err
	}
	return validateAbsoluteURI("followee", f.Followee)
}

// FollowAccept tells a requester their pending follow was accepted.
type FollowAccept struct {
	Base

	// Author is the followee granting the request.
	Author string `json:"author"`

	// Follower is the user whose request is being accepted.
	Follower string `json:"follower"`
}

// EntityType implements Entity.
func (f *FollowAccept) EntityType() string { return TypeFollowAccept }

// Validate implements Entity.
func (f *FollowAccept) Validate() error {
	if err := f.validateBase(); err != nil {
		return err
	}
	if err := validateAbsoluteURI("author", f.Author); err != nil {
		return err
	}
	return validateAbsoluteURI("follower", f.Follower)
}

// FollowReject tells a requester their pending follow was rejected.
type FollowReject struct {
	Base

	// Author is the followee rejecting the request.
	Author string `json:"author"`

	// Follower is the user whose request is being rejected.
	Follower string `json:"follower"`
}

// EntityType implements Entity.
func (f *FollowReject) EntityType() string { return TypeFollowReject }

// Validate implements Entity.
func (f *FollowReject) Validate() error {
	if err := f.validateBase(); err != nil {
		return err
	}
	if err := validateAbsoluteURI("author", f.Author); err != nil {
		return err
	}
	return validateAbsoluteURI("follower", f.Follower)
}

// Unfollow withdraws an existing follow relationship.
type Unfollow struct {
	Base

	// Author is the user withdrawing their follow.
	Author string `json:"author"`

	// Followee is the user no longer being followed.
	Followee string `json:"followee"`
}

// EntityType implements Entity.
func (u *Unfollow) EntityType() string { return TypeUnfollow }

// Validate implements Entity.
func (u *Unfollow) Validate() error {
	if err := u.validateBase(); err != nil {
		return err
	}
	if err := validateAbsoluteURI("author", u.Author); err != nil {
		return err
	}
	return validateAbsoluteURI("followee", u.Followee)
}

package types

// Duct is an opaque local-caller identifier. The ossuary maps it to the
// bone carrying that caller's flow, and back.
type Duct string

// Ossuary is the bidirectional map between local ducts and bones, plus the
// counter that mints fresh bones. NextBone always advances by BoneStep so
// the two low classification bits stay free.
type Ossuary struct {
	DuctToBone map[Duct]Bone
	BoneToDuct map[Bone]Duct
	NextBone   Bone
}

// NewOssuary returns an empty ossuary with the bone counter at its initial
// value; real bone numbers start at BoneStep so that bone 0 can be reserved
// for the default/first flow per-direction without colliding with a minted
// one.
func NewOssuary() *Ossuary {
	return &Ossuary{
		DuctToBone: make(map[Duct]Bone),
		BoneToDuct: make(map[Bone]Duct),
		NextBone:   BoneStep,
	}
}

// Mint allocates a fresh bone for duct if one does not already exist,
// returning the (possibly pre-existing) bone.
func (o *Ossuary) Mint(duct Duct) Bone {
	if b, ok := o.DuctToBone[duct]; ok {
		return b
	}
	b := o.NextBone
	o.NextBone += BoneStep
	o.DuctToBone[duct] = b
	o.BoneToDuct[b] = duct
	return b
}

// Forget removes a bone/duct pair, used when a flow is torn down.
func (o *Ossuary) Forget(b Bone) {
	if d, ok := o.BoneToDuct[b]; ok {
		delete(o.BoneToDuct, b)
		delete(o.DuctToBone, d)
	}
}

package keyinfo

import "github.com/alechenninger/keyinfo/internal/keydata"

// RegisterDefaults registers the seven built-in handlers into reg. It is
// the supplemented convenience entrypoint most callers use instead of
// registering each descriptor by hand, mirroring how the teacher repo's
// registries are seeded by a single bootstrapping call.
func RegisterDefaults(reg *keydata.Registry) error {
	descriptors := []*keydata.Descriptor{
		KeyNameDescriptor(),
		KeyValueDescriptor(),
		RetrievalMethodDescriptor(),
		KeyInfoReferenceDescriptor(),
		EncryptedKeyDescriptor(),
		DerivedKeyDescriptor(),
		AgreementMethodDescriptor(),
	}

	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

package partitiontype

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var concreteTypes = []Type{
	Esp, Xbootldr, Swap, Home, Srv, Var, Tmp, LinuxGeneric,
	RootAmd64, RootAmd64Verity, RootAmd64VeritySig,
	UsrAmd64, UsrAmd64Verity, UsrAmd64VeritySig,
	RootArm64, RootArm64Verity, RootArm64VeritySig,
	UsrArm64, UsrArm64Verity, UsrArm64VeritySig,
}

func TestRoundTripUUID(t *testing.T) {
	for _, ty := range concreteTypes {
		resolved := ty.ResolveCurrent()
		got := FromUUID(resolved.ToUUID())
		require.Truef(t, got.Equal(resolved), "FromUUID(ToUUID(%s)) = %s, want %s", ty, got, resolved)
	}
}

func TestRoundTripString(t *testing.T) {
	for _, ty := range concreteTypes {
		got, err := TryFromString(ty.String())
		require.NoError(t, err)
		require.Truef(t, got.Equal(ty), "TryFromString(%q) = %s, want %s", ty.String(), got, ty)
	}
}

func TestAliasResolutionBothArches(t *testing.T) {
	require.True(t, Root.Resolve("amd64").Equal(RootAmd64))
	require.True(t, Root.Resolve("arm64").Equal(RootArm64))
	require.True(t, Usr.Resolve("amd64").Equal(UsrAmd64))
	require.True(t, Usr.Resolve("arm64").Equal(UsrArm64))
}

func TestToUUIDPanicsOnUnresolvedAlias(t *testing.T) {
	require.Panics(t, func() { Root.ToUUID() })
}

func TestUnknownUUIDRoundTrips(t *testing.T) {
	u := uuid.New()
	ty := FromUUID(u)
	require.True(t, ty.IsUnknown())
	require.Equal(t, u, ty.ToUUID())
	require.Equal(t, u.String(), ty.String())
}

func TestToVerity(t *testing.T) {
	v, ok := RootAmd64.ToVerity()
	require.True(t, ok)
	require.True(t, v.Equal(RootAmd64Verity))

	v, ok = UsrArm64.ToVerity()
	require.True(t, ok)
	require.True(t, v.Equal(UsrArm64Verity))

	_, ok = Esp.ToVerity()
	require.False(t, ok)
}

func TestTryFromStringUnknownSuggestsClosest(t *testing.T) {
	_, err := TryFromString("linux-generik")
	require.Error(t, err)
	require.Contains(t, err.Error(), "linux-generic")
}

func TestValidMountpoints(t *testing.T) {
	require.Contains(t, Esp.ValidMountpoints(), "/boot/efi")
	require.Nil(t, LinuxGeneric.ValidMountpoints())
}

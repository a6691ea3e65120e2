package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)
	// EIP-2612 permit, used by enableOperatorWithPermit to authorise the
	// operator without a separate approve transaction.
	permitTypeHash = ethcrypto.Keccak256(
		[]byte("Permit(address owner,address spender,uint256 value,uint256 nonce,uint256 deadline)"),
	)
)

// PermitPayload carries the five EIP-2612 fields plus the token contract and
// name/version needed to build its domain separator.
type PermitPayload struct {
	TokenContract string // address of the ERC-20/permit-capable token
	TokenName     string
	TokenVersion  string
	Owner         string
	Spender       string
	Value         string // decimal uint256
	Nonce         string // decimal uint256
	Deadline      string // decimal unix timestamp
}

// Signer provides EIP-712/EIP-2612 signing and the deterministic action
// hash used to fingerprint submitted payloads.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// TransactOpts builds a go-ethereum bind.TransactOpts bound to this signer's
// key and chain id, for use by internal/chain when submitting transactions
// through an abi-bound contract session.
func (s *Signer) TransactOpts() (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.privateKey, big.NewInt(s.chainID))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: build transact opts: %w", err)
	}
	return opts, nil
}

// SignPermit signs an EIP-2612 Permit struct authorising the operator to
// spend on behalf of the renter. Returns a hex-encoded 65-byte signature.
func (s *Signer) SignPermit(p PermitPayload) (string, error) {
	domainSep := s.buildDomainSeparator(p.TokenName, p.TokenVersion, common.HexToAddress(p.TokenContract))

	value, ok := new(big.Int).SetString(p.Value, 10)
	if !ok {
		return "", fmt.Errorf("crypto/signer: invalid permit value %q", p.Value)
	}
	nonce, ok := new(big.Int).SetString(p.Nonce, 10)
	if !ok {
		return "", fmt.Errorf("crypto/signer: invalid permit nonce %q", p.Nonce)
	}
	deadline, ok := new(big.Int).SetString(p.Deadline, 10)
	if !ok {
		return "", fmt.Errorf("crypto/signer: invalid permit deadline %q", p.Deadline)
	}

	owner := common.HexToAddress(p.Owner)
	spender := common.HexToAddress(p.Spender)

	structHash := ethcrypto.Keccak256(
		concatBytes(
			permitTypeHash,
			common.LeftPadBytes(owner.Bytes(), 32),
			common.LeftPadBytes(spender.Bytes(), 32),
			bigIntTo32Bytes(value),
			bigIntTo32Bytes(nonce),
			bigIntTo32Bytes(deadline),
		),
	)

	digest := eip712Hash(domainSep, structHash)
	return s.signDigest(digest)
}

// ActionHash computes the deterministic fingerprint of a submitted payload:
// keccak256("<lower(target)>:<decimal(value)>:<lower(data)>"), taken over
// the last payload in a batch. Stable across re-runs (§8 invariant 7).
func ActionHash(payload domain.ActionPayload) string {
	s := fmt.Sprintf("%s:%s:%s", strings.ToLower(payload.Target), payload.Value, strings.ToLower(payload.Data))
	return "0x" + hex.EncodeToString(ethcrypto.Keccak256([]byte(s)))
}

// ActionHashBatch computes ActionHash over the last payload in a batch, or
// the empty hash of "" if the batch has no payloads.
func ActionHashBatch(payloads domain.ActionPayloads) string {
	last, ok := payloads.Last()
	if !ok {
		return ActionHash(domain.ActionPayload{})
	}
	return ActionHash(last)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId, verifyingContract)).
func (s *Signer) buildDomainSeparator(name, version string, verifyingContract common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(s.chainID)),
			common.LeftPadBytes(verifyingContract.Bytes(), 32),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, sl := range slices {
		total += len(sl)
	}
	buf := make([]byte, 0, total)
	for _, sl := range slices {
		buf = append(buf, sl...)
	}
	return buf
}

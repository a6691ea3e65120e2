package chain

// agentRegistryABI describes the subset of the AgentRegistry contract this
// client calls: per-token reads (type, subscription, vault, paused,
// cooldown, held tokens) and the two operator-gated writes that every
// submitted action and enable/clear flow goes through.
const agentRegistryABI = `[
	{"type":"function","name":"agentType","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"subscriptionStatus","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"vaultOf","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"renterOf","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"account","type":"address"},{"name":"expiresAt","type":"uint256"}]},
	{"type":"function","name":"operatorOf","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"account","type":"address"},{"name":"expiresAt","type":"uint256"}]},
	{"type":"function","name":"isPaused","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"cooldownSeconds","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"heldTokens","stateMutability":"view",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"execute","stateMutability":"nonpayable",
	 "inputs":[{"name":"tokenId","type":"uint256"},{"name":"target","type":"address"},
	           {"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],
	 "outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"executeBatch","stateMutability":"nonpayable",
	 "inputs":[{"name":"tokenId","type":"uint256"},{"name":"targets","type":"address[]"},
	           {"name":"values","type":"uint256[]"},{"name":"datas","type":"bytes[]"}],
	 "outputs":[{"name":"","type":"bytes[]"}]},
	{"type":"function","name":"enableOperatorWithPermit","stateMutability":"nonpayable",
	 "inputs":[{"name":"tokenId","type":"uint256"},{"name":"operator","type":"address"},
	           {"name":"permitExpires","type":"uint256"},{"name":"permitDeadline","type":"uint256"},
	           {"name":"sig","type":"bytes"}],
	 "outputs":[]},
	{"type":"function","name":"clearOperator","stateMutability":"nonpayable",
	 "inputs":[{"name":"tokenId","type":"uint256"}],
	 "outputs":[]}
]`

// erc20ABI is the minimal ERC-20 read surface the chain client needs:
// balance and allowance lookups against whatever token address a decision
// references.
const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// routerABI is the Uniswap-V2-style quoting call used for price
// observation and exposed to actions through action.Context.GetAmountsOut.
const routerABI = `[
	{"type":"function","name":"getAmountsOut","stateMutability":"view",
	 "inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],
	 "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

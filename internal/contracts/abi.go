package contracts

// PoolABI is the interface of the stable-token pool consumed by this service:
// the pricing views, the allowance-independent balance views, and the four
// write entry points (approve lives on the ERC-20 tokens).
const PoolABI = `[
  {"type":"function","stateMutability":"view","name":"collateralRatio","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"governancePriceUsd","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"mintPriceThreshold","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"redeemPriceThreshold","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"timeWeightedAvgPrice","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"dollarInCollateral","inputs":[{"name":"index","type":"uint256"},{"name":"dollarAmount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"collateralInfo","inputs":[{"name":"collateralAddress","type":"address"}],"outputs":[{"name":"index","type":"uint256"},{"name":"symbol","type":"string"},{"name":"token","type":"address"},{"name":"mintFee","type":"uint256"},{"name":"redeemFee","type":"uint256"},{"name":"missingDecimals","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"allCollaterals","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","stateMutability":"view","name":"redeemCollateralBalance","inputs":[{"name":"account","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"nonpayable","name":"mint","inputs":[{"name":"index","type":"uint256"},{"name":"dollarAmount","type":"uint256"},{"name":"minOut","type":"uint256"},{"name":"maxCollateralIn","type":"uint256"},{"name":"maxGovernanceIn","type":"uint256"},{"name":"forceCollateralOnly","type":"bool"}],"outputs":[]},
  {"type":"function","stateMutability":"nonpayable","name":"redeem","inputs":[{"name":"index","type":"uint256"},{"name":"dollarAmount","type":"uint256"},{"name":"minGovernanceOut","type":"uint256"},{"name":"minCollateralOut","type":"uint256"}],"outputs":[]},
  {"type":"function","stateMutability":"nonpayable","name":"collectRedemption","inputs":[{"name":"index","type":"uint256"}],"outputs":[]}
]`

// ERC20ABI covers the token surface the orchestrator needs: allowance reads
// and approvals.
const ERC20ABI = `[
  {"type":"function","stateMutability":"view","name":"allowance","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"balanceOf","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"nonpayable","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

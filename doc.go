//Package unbias recovers unbiased equilibrium statistics from ensembles of
//biased (umbrella sampling) molecular dynamics simulations. The root package
//contains the WHAM self-consistent solver and the weighted-observable
//helpers built on its output. Subpackages provide the diffusion-coefficient
//estimator (diffusion), block-bootstrap error estimation (bootstrap),
//PLUMED file and driver interoperation (plumed) and plotting (unbiasplot).
package unbias
